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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlugin struct{}

func (testPlugin) Start() error { return nil }
func (testPlugin) Stop() error  { return nil }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "updraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Same(t, cfg, GetConfig())
}

func TestLoadConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	var bucket string
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               "configtest",
		NewFromOptionsFunc: func() plugin.Plugin { return testPlugin{} },
		Options: []plugin.PluginOption{
			{Name: "bucket", Type: plugin.PluginOptionTypeString, Dest: &bucket},
		},
	})
	path := writeConfig(t, `
config:
  port: 8080
  baseUrl: "https://updates.example.com"
  assetUrlExpiry: 15m
  signing:
    decryptor: sops
    failClosed: true
database:
  blob:
    plugin: configtest
    configtest:
      bucket: assets
  metadata:
    plugin: postgres
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint(8080), cfg.Port)
	assert.Equal(t, "https://updates.example.com", cfg.BaseUrl)
	assert.Equal(t, 15*time.Minute, cfg.AssetUrlExpiry)
	assert.Equal(t, "sops", cfg.Signing.Decryptor)
	assert.True(t, cfg.Signing.FailClosed)
	assert.Equal(t, "configtest", cfg.BlobPlugin)
	assert.Equal(t, "postgres", cfg.MetadataPlugin)
	assert.Equal(t, "assets", bucket)
	// Untouched values keep their defaults
	assert.Equal(t, uint(12798), cfg.MetricsPort)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadConfigFileFlat(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
bindAddr: 127.0.0.1
corsOrigin: "*"
statsRetentionDays: 7
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
	assert.Equal(t, "*", cfg.CorsOrigin)
	assert.Equal(t, 7, cfg.StatsRetentionDays)
}

func TestLoadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("UPDRAFT_PORT", "4000")
	t.Setenv("BASE_URL", "https://fallback.example.com")
	t.Setenv("APP_PK_SECRET", "hunter2")
	t.Setenv("UPDRAFT_SIGNING_FAIL_CLOSED", "true")
	t.Setenv("UPDRAFT_DATABASE_BLOB_PLUGIN", "s3")
	t.Setenv("UPDRAFT_SHUTDOWN_TIMEOUT", "5s")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint(4000), cfg.Port)
	assert.Equal(t, "https://fallback.example.com", cfg.BaseUrl)
	assert.Equal(t, "hunter2", cfg.Signing.Secret)
	assert.True(t, cfg.Signing.FailClosed)
	assert.Equal(t, "s3", cfg.BlobPlugin)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)

	// The prefixed name wins
	t.Setenv("UPDRAFT_BASE_URL", "https://prefixed.example.com")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://prefixed.example.com", cfg.BaseUrl)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".env"),
		[]byte("UPDRAFT_CORS_ORIGIN=https://admin.example.com\n"),
		0o600,
	))
	// Unset after the test, since godotenv sets it in the process env
	t.Setenv("UPDRAFT_CORS_ORIGIN", "")
	require.NoError(t, os.Unsetenv("UPDRAFT_CORS_ORIGIN"))
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://admin.example.com", cfg.CorsOrigin)
}

func TestLoadInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	testDefs := []struct {
		name    string
		content string
	}{
		{name: "decryptor", content: "signing:\n  decryptor: vault\n"},
		{name: "expiry", content: "assetUrlExpiry: -1s\n"},
		{name: "retention", content: "statsRetentionDays: -3\n"},
		{name: "port", content: "port: 70000\n"},
		{name: "yaml", content: "port: [\n"},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, testDef.content))
			require.Error(t, err)
		})
	}
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	cfg := defaultConfig()
	assert.Same(t, cfg, FromContext(WithContext(ctx, cfg)))
}
