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

package database

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/blinklabs-io/updraft/database/plugin/blob"
	"github.com/blinklabs-io/updraft/database/plugin/blob/badger"
	"github.com/blinklabs-io/updraft/database/plugin/metadata"
	"github.com/blinklabs-io/updraft/database/plugin/metadata/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config holds the settings for opening a database
type Config struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	BlobPlugin     string
	MetadataPlugin string
}

// Database combines the metadata store holding apps, runtimes, builds and
// statistics with the blob store holding asset file contents
type Database struct {
	logger   *slog.Logger
	blob     blob.BlobStore
	metadata metadata.MetadataStore
}

// New opens the blob and metadata stores selected by the config
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	blobPlugin := config.BlobPlugin
	if blobPlugin == "" {
		blobPlugin = "badger"
	}
	metadataPlugin := config.MetadataPlugin
	if metadataPlugin == "" {
		metadataPlugin = "sqlite"
	}
	metadataDb, err := metadata.New(
		metadataPlugin,
		config.Logger,
		config.PromRegistry,
	)
	if err != nil {
		return nil, err
	}
	blobDb, err := blob.New(blobPlugin, config.Logger, config.PromRegistry)
	if err != nil {
		_ = metadataDb.Close()
		return nil, err
	}
	return NewWithStores(config.Logger, blobDb, metadataDb), nil
}

// NewWithStores creates a database from already started stores
func NewWithStores(
	logger *slog.Logger,
	blobStore blob.BlobStore,
	metadataStore metadata.MetadataStore,
) *Database {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Database{
		logger:   logger,
		blob:     blobStore,
		metadata: metadataStore,
	}
}

// NewInMemory creates a database backed by in-memory badger and sqlite
// stores. Nothing is persisted
func NewInMemory(logger *slog.Logger) (*Database, error) {
	metadataDb, err := sqlite.New("", logger, nil)
	if err != nil {
		return nil, err
	}
	blobDb, err := badger.New(badger.WithLogger(logger), badger.WithGc(false))
	if err != nil {
		_ = metadataDb.Close()
		return nil, err
	}
	if err := blobDb.Start(); err != nil {
		_ = metadataDb.Close()
		return nil, err
	}
	return NewWithStores(logger, blobDb, metadataDb), nil
}

// Blob returns the underling blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// db returns a gorm handle bound to the context
func (d *Database) db(ctx context.Context) *gorm.DB {
	return d.metadata.DB().WithContext(ctx)
}

// Ping checks that the metadata store is reachable
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.metadata.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	// Close metadata
	metadataErr := d.Metadata().Close()
	err = errors.Join(err, metadataErr)
	// Close blob
	blobErr := d.Blob().Close()
	err = errors.Join(err, blobErr)
	return err
}
