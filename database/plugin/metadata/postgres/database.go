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

package postgres

import (
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/blinklabs-io/updraft/database/plugin/metadata/internal/gormutil"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// MetadataStorePostgres stores metadata in Postgres.
type MetadataStorePostgres struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	conn         gormutil.Conn
}

// New creates a new database from a connection string, such as the value
// of a DATABASE_URL environment variable
func New(
	dsn string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*MetadataStorePostgres, error) {
	return NewWithOptions(
		WithDSN(dsn),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	db := &MetadataStorePostgres{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	db.conn = db.conn.WithDefaults(defaultConn)
	if err := db.conn.Validate(); err != nil {
		return nil, err
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Note: Database initialization happens in Start()
	return db, nil
}

// SetLogger implements the plugin.Instrumented interface
func (d *MetadataStorePostgres) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Instrumented interface
func (d *MetadataStorePostgres) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// connString returns the configured DSN, or builds a key/value connection
// string from the individual options
func (d *MetadataStorePostgres) connString() string {
	c := d.conn
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + c.Host,
		"user=" + c.User,
		"password=" + c.Password,
		"dbname=" + c.Database,
		"port=" + strconv.FormatUint(c.Port, 10),
		"sslmode=" + c.SSLMode,
	}
	if c.TimeZone != "" {
		parts = append(parts, "TimeZone="+c.TimeZone)
	}
	return strings.Join(parts, " ")
}

// logTarget returns connection details that are safe to log
func (d *MetadataStorePostgres) logTarget() (string, string) {
	dsn := strings.TrimSpace(d.conn.DSN)
	if dsn == "" {
		return d.conn.Host, d.conn.Database
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "dsn", ""
	}
	return u.Host, strings.TrimPrefix(u.Path, "/")
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	if d.db != nil {
		return nil
	}
	metadataDb, err := gorm.Open(
		postgres.Open(d.connString()),
		gormutil.Config(true),
	)
	if err != nil {
		return err
	}
	host, database := d.logTarget()
	d.logger.Info(
		"connected to postgres metadata store",
		"component", "database",
		"host", host,
		"database", database,
	)
	d.db = metadataDb
	if err := gormutil.ConfigurePool(d.db, d.conn); err != nil {
		return err
	}
	if err := gormutil.RegisterPoolMetrics(d.db, d.promRegistry, database); err != nil {
		return err
	}
	return gormutil.Setup(d.db, d.logger)
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}

// Close gets the database handle from our MetadataStore and closes it
func (d *MetadataStorePostgres) Close() error {
	// Guard against nil DB handle (e.g., if Start() failed or was never called)
	if d.db == nil {
		return nil
	}
	err := gormutil.Close(d.db)
	d.db = nil
	return err
}

// DB returns the database handle
func (d *MetadataStorePostgres) DB() *gorm.DB {
	return d.db
}
