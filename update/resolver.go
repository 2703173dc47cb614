// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package update decides what a device asking for an update receives: a
// new manifest, a no-update directive or a rollback directive
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/database/types"
	"github.com/blinklabs-io/updraft/event"
	"github.com/blinklabs-io/updraft/expo"
	"github.com/blinklabs-io/updraft/stats"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAppNotFound = errors.New("app not found")
	// ErrRollbackUnsupported is returned for a rollback under protocol 0
	ErrRollbackUnsupported = errors.New("rollbacks not supported on protocol version 0")
	// ErrDirectiveUnsupported is returned when protocol 0 would need a
	// no-update directive
	ErrDirectiveUnsupported = errors.New("noUpdateAvailable directive not available in protocol version 0")
)

// Store is the read side of the database used during resolution
type Store interface {
	LookupApp(
		ctx context.Context,
		appID string,
		organizationID string,
		runtimeVersion string,
		platform models.Platform,
		channel string,
	) (*models.App, *models.AppRuntime, error)
	BuildAssets(ctx context.Context, buildID string) ([]models.BuildAsset, error)
}

// Publisher queues events without blocking
type Publisher interface {
	PublishAsync(eventType event.EventType, evt event.Event) bool
}

// Result holds exactly one of Manifest and Directive
type Result struct {
	Manifest  *expo.Manifest
	Directive *expo.Directive
	// SigningKey is the encrypted signing key of the app, if it has one
	SigningKey *string
	AppID      string
	BuildID    string
}

type ResolverConfig struct {
	Store        Store
	Publisher    Publisher
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	BaseURL      string
	// Now is used for rollback commit times. It defaults to time.Now
	Now func() time.Time
}

type Resolver struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	baseURL   string
	now       func() time.Time
	metrics   *resolverMetrics
	tracer    trace.Tracer
}

func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger.With("component", "update"),
		baseURL:   cfg.BaseURL,
		now:       now,
		metrics:   newResolverMetrics(cfg.PromRegistry),
		tracer:    otel.Tracer("github.com/blinklabs-io/updraft/update"),
	}
}

// Resolve decides the response for an update request
func (r *Resolver) Resolve(ctx context.Context, req *expo.UpdateRequest) (*Result, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(
		ctx,
		"update.Resolve",
		trace.WithAttributes(
			attribute.String("app.id", req.AppID),
			attribute.String("runtime.version", req.RuntimeVersion),
			attribute.String("platform", string(req.Platform)),
			attribute.String("channel", req.Channel),
			attribute.Int("protocol.version", req.ProtocolVersion),
		),
	)
	defer span.End()

	result, outcome, err := r.resolve(ctx, req)
	r.metrics.observe(outcome, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func (r *Resolver) resolve(
	ctx context.Context,
	req *expo.UpdateRequest,
) (*Result, string, error) {
	app, runtime, err := r.store.LookupApp(
		ctx,
		req.AppID,
		req.OrganizationID,
		req.RuntimeVersion,
		req.Platform,
		req.Channel,
	)
	if err != nil {
		if errors.Is(err, types.ErrAppNotFound) {
			return nil, outcomeAppNotFound, fmt.Errorf("%w: %s", ErrAppNotFound, req.AppID)
		}
		return nil, outcomeError, fmt.Errorf("lookup app: %w", err)
	}

	if app.SaveDownloadStatistics {
		r.publishStats(app, runtime, req)
	}

	ret := &Result{
		SigningKey: app.SigningKey,
		AppID:      app.ID,
	}

	if runtime == nil {
		r.logger.Debug(
			"no runtime found",
			"app_id", app.ID,
			"runtime_version", req.RuntimeVersion,
			"platform", req.Platform,
			"channel", req.Channel,
		)
		return r.noUpdate(ret, req)
	}

	if runtime.IsRollback {
		if req.ProtocolVersion == 0 {
			return nil, outcomeUnsupported, ErrRollbackUnsupported
		}
		if req.SameUpdate() {
			return r.noUpdate(ret, req)
		}
		ret.Directive = expo.RollBackToEmbedded(r.now())
		return ret, outcomeRollback, nil
	}

	build := runtime.ActiveBuild
	if build == nil || build.IsDraft() {
		r.logger.Debug(
			"no active finalized build",
			"app_id", app.ID,
			"runtime_id", runtime.ID,
		)
		return r.noUpdate(ret, req)
	}
	ret.BuildID = build.ID

	// Protocol 0 has no no-update directive, so the manifest is always sent
	if req.ProtocolVersion == 1 && req.CurrentUpdateID != nil &&
		*req.CurrentUpdateID == expo.ManifestID(build.ID, runtime.RuntimeVersion, build.UpdatedAt) {
		return r.noUpdate(ret, req)
	}

	assets, err := r.store.BuildAssets(ctx, build.ID)
	if err != nil {
		return nil, outcomeError, fmt.Errorf("load assets of build %s: %w", build.ID, err)
	}
	manifest, err := expo.BuildManifest(build, runtime.RuntimeVersion, assets, r.baseURL)
	if err != nil {
		r.logger.Error(
			"failed to build manifest",
			"app_id", app.ID,
			"build_id", build.ID,
			"error", err,
		)
		return nil, outcomeError, err
	}
	ret.Manifest = manifest
	return ret, outcomeManifest, nil
}

func (r *Resolver) noUpdate(ret *Result, req *expo.UpdateRequest) (*Result, string, error) {
	if req.ProtocolVersion == 0 {
		return nil, outcomeUnsupported, ErrDirectiveUnsupported
	}
	ret.Directive = expo.NoUpdateAvailable()
	return ret, outcomeNoUpdate, nil
}

func (r *Resolver) publishStats(
	app *models.App,
	runtime *models.AppRuntime,
	req *expo.UpdateRequest,
) {
	if r.publisher == nil {
		return
	}
	evt := stats.RequestEvent{
		AppID:            app.ID,
		CurrentUpdateID:  req.CurrentUpdateID,
		EmbeddedUpdateID: req.EmbeddedUpdateID,
		RuntimeVersion:   req.RuntimeVersion,
		Platform:         req.Platform,
		Channel:          req.Channel,
	}
	if runtime != nil && runtime.ActiveBuild != nil {
		buildID := runtime.ActiveBuild.ID
		evt.BuildID = &buildID
	}
	r.publisher.PublishAsync(
		stats.RequestEventType,
		event.NewEvent(stats.RequestEventType, evt),
	)
}
