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

// Package updraft wires the updates API, storage and statistics together
package updraft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/updraft/api"
	"github.com/blinklabs-io/updraft/database"
	"github.com/blinklabs-io/updraft/database/plugin"
	"github.com/blinklabs-io/updraft/event"
	"github.com/blinklabs-io/updraft/keystore"
	"github.com/blinklabs-io/updraft/stats"
	"github.com/blinklabs-io/updraft/update"
)

const defaultShutdownTimeout = 30 * time.Second

type Server struct {
	eventBus      *event.EventBus
	db            *database.Database
	recorder      *stats.Recorder
	resolver      *update.Resolver
	api           *api.Server
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
	apiMu         sync.Mutex
}

func New(cfg Config) (*Server, error) {
	s := &Server{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := s.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
	return s, nil
}

// Run starts all components and blocks until ctx is cancelled or Stop is
// called
func (s *Server) Run(ctx context.Context) error {
	// Configure tracing
	if s.config.tracing {
		if err := s.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := OpenDatabase(s.config)
	if err != nil {
		return err
	}
	s.db = db
	// Signing key decryption
	var decryptor keystore.Decryptor
	cipher, err := keystore.New(s.config.decryptor, s.config.signingSecret)
	if err != nil {
		if !errors.Is(err, keystore.ErrMissingSecret) {
			return fmt.Errorf("failed to configure decryptor: %w", err)
		}
		s.config.logger.Warn(
			"no signing secret configured, responses for apps with signing keys will not be signed",
			"component", "updraft",
		)
	} else {
		decryptor = cipher
	}
	// Download statistics
	var publisher update.Publisher
	if s.config.statsEnabled {
		s.recorder = stats.NewRecorder(
			s.db,
			s.config.logger,
			s.config.promRegistry,
		)
		s.recorder.Subscribe(s.eventBus)
		publisher = s.eventBus
	}
	s.resolver = update.NewResolver(update.ResolverConfig{
		Store:        s.db,
		Publisher:    publisher,
		Logger:       s.config.logger,
		PromRegistry: s.config.promRegistry,
		BaseURL:      s.config.baseURL,
	})
	// Configure API
	apiServer := api.New(api.Config{
		Logger:          s.config.logger,
		Resolver:        s.resolver,
		Assets:          s.db,
		Blob:            s.db.Blob(),
		Decryptor:       decryptor,
		Health:          s.db,
		ListenAddress:   s.config.listenAddress,
		CorsOrigin:      s.config.corsOrigin,
		AssetURLExpiry:  s.config.assetURLExpiry,
		FailClosed:      s.config.failClosed,
		TlsCertFilePath: s.config.tlsCertFilePath,
		TlsKeyFilePath:  s.config.tlsKeyFilePath,
	})
	s.apiMu.Lock()
	s.api = apiServer
	s.apiMu.Unlock()
	if err := apiServer.Start(ctx); err != nil {
		return err
	}
	s.config.logger.Info(
		"updates server started",
		"component", "updraft",
		"address", apiServer.Addr(),
		"base_url", s.config.baseURL,
	)

	// Wait for shutdown
	select {
	case <-ctx.Done():
		return s.Stop()
	case <-s.done:
		return nil
	}
}

// OpenDatabase opens the storage plugins selected by the config. It's used
// by Run and by the operator commands
func OpenDatabase(cfg Config) (*database.Database, error) {
	blobPlugin := cfg.blobPlugin
	if blobPlugin == "" {
		blobPlugin = "badger"
	}
	metadataPlugin := cfg.metadataPlugin
	if metadataPlugin == "" {
		metadataPlugin = "sqlite"
	}
	// Point the local storage plugins at the data dir. Plugins without a
	// data-dir option ignore it
	if cfg.dataDir != "" {
		if err := plugin.SetPluginOption(
			plugin.PluginTypeBlob,
			blobPlugin,
			"data-dir",
			cfg.dataDir,
		); err != nil {
			return nil, fmt.Errorf("failed to set blob data dir: %w", err)
		}
		if err := plugin.SetPluginOption(
			plugin.PluginTypeMetadata,
			metadataPlugin,
			"data-dir",
			cfg.dataDir,
		); err != nil {
			return nil, fmt.Errorf("failed to set metadata data dir: %w", err)
		}
	}
	db, err := database.New(&database.Config{
		Logger:         cfg.logger,
		PromRegistry:   cfg.promRegistry,
		BlobPlugin:     blobPlugin,
		MetadataPlugin: metadataPlugin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Addr returns the bound API address, or "" when the API isn't running
func (s *Server) Addr() string {
	s.apiMu.Lock()
	defer s.apiMu.Unlock()
	if s.api == nil {
		return ""
	}
	return s.api.Addr()
}

func (s *Server) Stop() error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Server) shutdown() error {
	shutdownTimeout := defaultShutdownTimeout
	if s.config.shutdownTimeout > 0 {
		shutdownTimeout = s.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	s.config.logger.Debug("starting graceful shutdown", "component", "updraft")

	// Phase 1: Stop accepting new requests
	s.apiMu.Lock()
	apiServer := s.api
	s.apiMu.Unlock()
	if apiServer != nil {
		if stopErr := apiServer.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Drain queued statistics while the database is still open
	if s.eventBus != nil {
		s.eventBus.Stop()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}

	// Phase 3: Close database
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Call registered shutdown functions
	for _, fn := range s.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	s.shutdownFuncs = nil

	s.config.logger.Debug("graceful shutdown complete", "component", "updraft")
	close(s.done)
	return err
}
