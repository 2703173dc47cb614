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
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/blinklabs-io/updraft/database/plugin"
	"github.com/blinklabs-io/updraft/database/plugin/metadata/internal/gormutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnString(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m, err := NewWithOptions(
		WithConn(gormutil.Conn{
			Host:     "db.local",
			Port:     3307,
			User:     "updraft",
			Password: "secret",
			Database: "ota",
			SSLMode:  "true",
		}),
		WithLogger(logger),
		WithPromRegistry(reg),
	)
	require.NoError(t, err)
	assert.Equal(t, logger, m.logger)
	assert.Equal(t, reg, m.promRegistry)

	dsn, database := m.connString()
	assert.Equal(t, "ota", database)
	assert.True(t, strings.HasPrefix(dsn, "updraft:secret@tcp(db.local:3307)/ota?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tls=true")
}

func TestConnStringIPv6(t *testing.T) {
	m, err := NewWithOptions(WithConn(gormutil.Conn{Host: "::1"}))
	require.NoError(t, err)
	dsn, _ := m.connString()
	assert.Contains(t, dsn, "@tcp([::1]:3306)/updraft?")
}

func TestDSNOverrides(t *testing.T) {
	m, err := NewWithOptions(
		WithConn(gormutil.Conn{Host: "ignored"}),
		WithDSN("user:pw@tcp(mysql:3306)/updates?parseTime=true"),
	)
	require.NoError(t, err)
	dsn, database := m.connString()
	assert.Equal(t, "user:pw@tcp(mysql:3306)/updates?parseTime=true", dsn)
	assert.Equal(t, "updates", database)
}

func TestDefaults(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost", m.conn.Host)
	assert.Equal(t, uint64(3306), m.conn.Port)
	assert.Equal(t, "root", m.conn.User)
	assert.Equal(t, "updraft", m.conn.Database)
	assert.Equal(t, 100, m.conn.MaxOpenConns)
	// Close before Start is a no-op
	require.NoError(t, m.Close())
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		conn gormutil.Conn
	}{
		{name: "timezone", conn: gormutil.Conn{TimeZone: "Mars/Olympus_Mons"}},
		{name: "lifetime", conn: gormutil.Conn{ConnMaxLifetime: "soon"}},
		{name: "open conns", conn: gormutil.Conn{MaxOpenConns: -5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWithOptions(WithConn(tc.conn))
			require.Error(t, err)
		})
	}
}

func TestRegisteredOptions(t *testing.T) {
	var names []string
	for _, entry := range plugin.GetPlugins(plugin.PluginTypeMetadata) {
		if entry.Name != "mysql" {
			continue
		}
		for _, opt := range entry.Options {
			names = append(names, opt.Name)
		}
	}
	assert.Contains(t, names, "dsn")
	assert.Contains(t, names, "max-open-conns")
	assert.Contains(t, names, "conn-max-lifetime")
}
