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

package gormutil

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// Conn holds the connection settings shared by the networked metadata
// stores. A non-empty DSN takes precedence over the individual fields.
type Conn struct {
	Host            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	TimeZone        string
	DSN             string
	ConnMaxLifetime string
	Port            uint64
	MaxOpenConns    int
	MaxIdleConns    int
}

// WithDefaults fills unset fields from defaults
func (c Conn) WithDefaults(defaults Conn) Conn {
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.User == "" {
		c.User = defaults.User
	}
	if c.Database == "" {
		c.Database = defaults.Database
	}
	if c.SSLMode == "" {
		c.SSLMode = defaults.SSLMode
	}
	if c.TimeZone == "" {
		c.TimeZone = defaults.TimeZone
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaults.MaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaults.MaxIdleConns
	}
	return c
}

// Validate checks the pool settings
func (c Conn) Validate() error {
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("connection limits must not be negative")
	}
	if c.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid conn-max-lifetime: %w", err)
		}
	}
	return nil
}

// PluginOptions returns the registry options of a networked store, bound to
// the fields of c. The current field values become the option defaults.
// envVars maps option names to well-known env vars of the driver.
func (c *Conn) PluginOptions(
	driver string,
	envVars map[string]string,
) []plugin.PluginOption {
	opt := func(name string, typ plugin.PluginOptionType, desc string, def any, dest any) plugin.PluginOption {
		return plugin.PluginOption{
			Name:         name,
			Type:         typ,
			Description:  driver + " " + desc,
			DefaultValue: def,
			CustomEnvVar: envVars[name],
			Dest:         dest,
		}
	}
	return []plugin.PluginOption{
		opt("host", plugin.PluginOptionTypeString, "host", c.Host, &c.Host),
		opt("port", plugin.PluginOptionTypeUint, "port", c.Port, &c.Port),
		opt("user", plugin.PluginOptionTypeString, "user", c.User, &c.User),
		opt("password", plugin.PluginOptionTypeString, "password", c.Password, &c.Password),
		opt("database", plugin.PluginOptionTypeString, "database name", c.Database, &c.Database),
		opt("ssl-mode", plugin.PluginOptionTypeString, "TLS mode", c.SSLMode, &c.SSLMode),
		opt("timezone", plugin.PluginOptionTypeString, "session time zone", c.TimeZone, &c.TimeZone),
		opt("dsn", plugin.PluginOptionTypeString, "connection string, overrides the other connection options", c.DSN, &c.DSN),
		opt("max-open-conns", plugin.PluginOptionTypeInt, "maximum open connections", c.MaxOpenConns, &c.MaxOpenConns),
		opt("max-idle-conns", plugin.PluginOptionTypeInt, "maximum idle connections", c.MaxIdleConns, &c.MaxIdleConns),
		opt("conn-max-lifetime", plugin.PluginOptionTypeString, "maximum connection lifetime", c.ConnMaxLifetime, &c.ConnMaxLifetime),
	}
}

// ConfigurePool applies the connection pool limits
func ConfigurePool(db *gorm.DB, c Conn) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if c.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	}
	if strings.TrimSpace(c.ConnMaxLifetime) != "" {
		lifetime, err := time.ParseDuration(c.ConnMaxLifetime)
		if err != nil {
			return fmt.Errorf("invalid conn-max-lifetime: %w", err)
		}
		sqlDB.SetConnMaxLifetime(lifetime)
	}
	return nil
}

// RegisterPoolMetrics exports the connection pool stats of db. It's a no-op
// without a registry, and a collector that is already registered is kept.
func RegisterPoolMetrics(
	db *gorm.DB,
	registry prometheus.Registerer,
	dbName string,
) error {
	if registry == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	err = registry.Register(collectors.NewDBStatsCollector(sqlDB, dbName))
	var are prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &are) {
		return err
	}
	return nil
}
