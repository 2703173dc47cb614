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
	"sync"

	"github.com/blinklabs-io/updraft/database/plugin"
	"github.com/blinklabs-io/updraft/database/plugin/metadata/internal/gormutil"
)

var defaultConn = gormutil.Conn{
	Host:            "localhost",
	Port:            5432,
	User:            "postgres",
	Database:        "postgres",
	SSLMode:         "disable",
	TimeZone:        "UTC",
	MaxOpenConns:    100,
	MaxIdleConns:    10,
	ConnMaxLifetime: "1h",
}

// libpq env vars are honored, and DATABASE_URL for the DSN
var envVars = map[string]string{
	"host":     "PGHOST",
	"port":     "PGPORT",
	"user":     "PGUSER",
	"password": "PGPASSWORD",
	"database": "PGDATABASE",
	"ssl-mode": "PGSSLMODE",
	"timezone": "PGTZ",
	"dsn":      "DATABASE_URL",
}

var (
	cmdlineOptions      = defaultConn
	cmdlineOptionsMutex sync.RWMutex
)

// Register plugin
func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "postgres",
			Description:        "Postgres relational database",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options:            cmdlineOptions.PluginOptions("Postgres", envVars),
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	conn := cmdlineOptions
	cmdlineOptionsMutex.RUnlock()

	p, err := NewWithOptions(WithConn(conn))
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
