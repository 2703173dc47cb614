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

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin/metadata/internal/gormutil"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// mysqlErrUnknownDatabase is returned by the server when the database in
// the DSN doesn't exist
const mysqlErrUnknownDatabase = 1049

// MetadataStoreMysql stores metadata in MySQL.
type MetadataStoreMysql struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	conn         gormutil.Conn
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	db.conn = db.conn.WithDefaults(defaultConn)
	if err := db.conn.Validate(); err != nil {
		return nil, err
	}
	if db.conn.TimeZone != "" {
		if _, err := time.LoadLocation(db.conn.TimeZone); err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Note: Database initialization happens in Start()
	return db, nil
}

// SetLogger implements the plugin.Instrumented interface
func (d *MetadataStoreMysql) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Instrumented interface
func (d *MetadataStoreMysql) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// connString returns the configured DSN and the database name it selects
func (d *MetadataStoreMysql) connString() (string, string) {
	c := d.conn
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return dsn, ""
		}
		return dsn, cfg.DBName
	}
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.FormatUint(c.Port, 10))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	if loc, err := time.LoadLocation(c.TimeZone); err == nil {
		cfg.Loc = loc
	}
	if c.SSLMode != "" {
		cfg.TLSConfig = c.SSLMode
	}
	return cfg.FormatDSN(), c.Database
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	if d.db != nil {
		return nil
	}
	dsn, database := d.connString()
	metadataDb, err := gorm.Open(gormmysql.Open(dsn), gormutil.Config(true))
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) ||
			mysqlErr.Number != mysqlErrUnknownDatabase {
			return err
		}
		if err := d.ensureDatabaseExists(dsn, database); err != nil {
			return fmt.Errorf("create database %q: %w", database, err)
		}
		metadataDb, err = gorm.Open(gormmysql.Open(dsn), gormutil.Config(true))
		if err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to mysql metadata store",
		"component", "database",
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

// ensureDatabaseExists connects without a database selected and creates it
func (d *MetadataStoreMysql) ensureDatabaseExists(
	dsn string,
	dbName string,
) error {
	if dbName == "" {
		return errors.New("no database name in DSN")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	cfg.DBName = ""
	adminDb, err := gorm.Open(
		gormmysql.Open(cfg.FormatDSN()),
		gormutil.Config(false),
	)
	if err != nil {
		return err
	}
	defer gormutil.Close(adminDb) //nolint:errcheck
	name := strings.ReplaceAll(dbName, "`", "``")
	return adminDb.Exec("CREATE DATABASE IF NOT EXISTS `" + name + "`").Error
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close gets the database handle from our MetadataStore and closes it
func (d *MetadataStoreMysql) Close() error {
	// Guard against nil DB handle (e.g., if Start() failed or was never called)
	if d.db == nil {
		return nil
	}
	err := gormutil.Close(d.db)
	d.db = nil
	return err
}

// DB returns the database handle
func (d *MetadataStoreMysql) DB() *gorm.DB {
	return d.db
}
