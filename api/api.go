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

// Package api serves the Expo updates HTTP endpoints
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/expo"
	"github.com/blinklabs-io/updraft/keystore"
	"github.com/blinklabs-io/updraft/update"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	DefaultListenAddress  = ":3000"
	DefaultAssetURLExpiry = time.Hour
	shutdownTimeout       = 30 * time.Second
)

// Resolver decides the response to an update request
type Resolver interface {
	Resolve(ctx context.Context, req *expo.UpdateRequest) (*update.Result, error)
}

// AssetStore looks up asset records
type AssetStore interface {
	GetAsset(ctx context.Context, assetID string) (*models.BuildAsset, error)
}

// BlobReader serves asset contents
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// HealthChecker reports whether the backing database is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Logger    *slog.Logger
	Resolver  Resolver
	Assets    AssetStore
	Blob      BlobReader
	Decryptor keystore.Decryptor
	Health    HealthChecker
	// ListenAddress defaults to :3000
	ListenAddress string
	// CorsOrigin is the allowed origin for cross-origin requests. CORS
	// headers are not sent when it's empty
	CorsOrigin     string
	AssetURLExpiry time.Duration
	// FailClosed turns signing failures into server errors instead of
	// sending the response unsigned
	FailClosed      bool
	TlsCertFilePath string
	TlsKeyFilePath  string
}

// Server is the updates HTTP server
type Server struct {
	config     Config
	logger     *slog.Logger
	httpServer *http.Server
	addr       string
	mu         sync.Mutex
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.AssetURLExpiry <= 0 {
		cfg.AssetURLExpiry = DefaultAssetURLExpiry
	}
	return &Server{
		config: cfg,
		logger: logger.With("component", "api"),
	}
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /expo/manifest", s.handleManifest)
	mux.HandleFunc("GET /expo/assets/{assetId}", s.handleAsset)
	mux.Handle(
		grpchealth.NewHandler(&healthChecker{server: s}),
	)
	mux.Handle(
		grpcreflect.NewHandlerV1(
			grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName),
		),
	)
	mux.Handle(
		grpcreflect.NewHandlerV1Alpha(
			grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName),
		),
	)
	var handler http.Handler = mux
	handler = s.cors(handler)
	handler = otelhttp.NewHandler(handler, "updraft")
	return handler
}

// Start binds the listener and serves in the background until Stop is
// called or ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		ReadHeaderTimeout: 60 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	useTls := s.config.TlsCertFilePath != "" && s.config.TlsKeyFilePath != ""
	if useTls {
		server.Handler = s.Handler()
	} else {
		// Use h2c so gRPC health checks work without TLS
		server.Handler = h2c.NewHandler(s.Handler(), &http2.Server{})
	}
	s.httpServer = server
	s.mu.Unlock()

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		s.mu.Lock()
		s.httpServer = nil
		s.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.logger.Info(
		"API listener started",
		"address", ln.Addr().String(),
		"tls", useTls,
	)
	go func() {
		var err error
		if useTls {
			err = server.ServeTLS(ln, s.config.TlsCertFilePath, s.config.TlsKeyFilePath)
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" if not started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.addr = ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}
