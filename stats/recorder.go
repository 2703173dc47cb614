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

// Package stats records update checks made by devices and aggregates them
// into download reports
package stats

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/event"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	RequestEventType = event.EventType("stats.request")

	defaultWriteTimeout = 5 * time.Second
)

// RequestEvent describes one manifest request for an app that saves
// download statistics
type RequestEvent struct {
	AppID            string
	BuildID          *string
	CurrentUpdateID  *string
	EmbeddedUpdateID *string
	RuntimeVersion   string
	Platform         models.Platform
	Channel          string
}

// EntryStore persists stats entries
type EntryStore interface {
	AddStatsEntry(ctx context.Context, entry *models.AppStatsEntry) error
}

// Recorder is an event bus subscriber that stores request events. Write
// failures are logged and never returned, so the recorder stays subscribed
type Recorder struct {
	store        EntryStore
	logger       *slog.Logger
	writeTimeout time.Duration
	recorded     *prometheus.CounterVec
	closeOnce    sync.Once
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewRecorder(
	store EntryStore,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		store:        store,
		logger:       logger.With("component", "stats"),
		writeTimeout: defaultWriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
		recorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_entries_total",
				Help: "stats entries written, by result",
			},
			[]string{"result"},
		),
	}
	if promRegistry != nil {
		promRegistry.MustRegister(r.recorded)
	}
	return r
}

// Subscribe registers the recorder on the bus for request events
func (r *Recorder) Subscribe(bus *event.EventBus) event.EventSubscriberId {
	return bus.RegisterSubscriber(RequestEventType, r)
}

func (r *Recorder) Deliver(evt event.Event) error {
	req, ok := evt.Data.(RequestEvent)
	if !ok {
		r.logger.Warn("ignoring unexpected event data", "type", evt.Type)
		return nil
	}
	entry := &models.AppStatsEntry{
		AppID:            req.AppID,
		BuildID:          req.BuildID,
		CurrentUpdateID:  req.CurrentUpdateID,
		EmbeddedUpdateID: req.EmbeddedUpdateID,
		RuntimeVersion:   req.RuntimeVersion,
		Platform:         req.Platform,
		Channel:          req.Channel,
		CreatedAt:        evt.Timestamp.UTC(),
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.writeTimeout)
	defer cancel()
	if err := r.store.AddStatsEntry(ctx, entry); err != nil {
		r.recorded.WithLabelValues("error").Inc()
		r.logger.Error(
			"failed to save stats",
			"app_id", req.AppID,
			"error", err,
		)
		return nil
	}
	r.recorded.WithLabelValues("ok").Inc()
	return nil
}

// Close aborts any write in progress
func (r *Recorder) Close() {
	r.closeOnce.Do(r.cancel)
}
