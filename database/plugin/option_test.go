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

package plugin

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type optionTestPlugin struct{}

func (optionTestPlugin) Start() error { return nil }
func (optionTestPlugin) Stop() error  { return nil }

type optionTestValues struct {
	bucket  string
	gc      bool
	workers int
	cache   uint64
}

func registerOptionTestPlugin(t *testing.T, name string) *optionTestValues {
	t.Helper()
	vals := &optionTestValues{}
	Register(PluginEntry{
		Type:               PluginTypeBlob,
		Name:               name,
		NewFromOptionsFunc: func() Plugin { return optionTestPlugin{} },
		Options: []PluginOption{
			{Name: "bucket", Type: PluginOptionTypeString, DefaultValue: "default-bucket", Dest: &vals.bucket},
			{Name: "gc", Type: PluginOptionTypeBool, DefaultValue: false, Dest: &vals.gc},
			{Name: "workers", Type: PluginOptionTypeInt, DefaultValue: 2, Dest: &vals.workers},
			{Name: "cache-size", Type: PluginOptionTypeUint, DefaultValue: uint64(16), Dest: &vals.cache},
		},
	})
	return vals
}

func TestPopulateCmdlineOptions(t *testing.T) {
	vals := registerOptionTestPlugin(t, "opttest-flags")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, PopulateCmdlineOptions(fs))
	t.Cleanup(func() { flagSet = nil })

	// Defaults are applied when flags are bound
	assert.Equal(t, "default-bucket", vals.bucket)
	assert.Equal(t, 2, vals.workers)
	assert.Equal(t, uint64(16), vals.cache)

	require.NoError(t, fs.Parse([]string{
		"--blob-opttest-flags-bucket=assets",
		"--blob-opttest-flags-gc",
		"--blob-opttest-flags-cache-size=64",
	}))
	assert.Equal(t, "assets", vals.bucket)
	assert.True(t, vals.gc)
	assert.Equal(t, uint64(64), vals.cache)

	// Explicit flags win over config file values
	err := ProcessConfig(map[string]map[string]map[string]any{
		"blob": {
			"opttest-flags": {
				"bucket":  "from-config",
				"workers": 7,
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "assets", vals.bucket)
	assert.Equal(t, 7, vals.workers)
}

func TestProcessConfigCoercion(t *testing.T) {
	vals := registerOptionTestPlugin(t, "opttest-config")
	err := ProcessConfig(map[string]map[string]map[string]any{
		"blob": {
			"opttest-config": {
				"bucket":     "bucket-a",
				"gc":         "true",
				"workers":    "3",
				"cache-size": 1024,
			},
		},
		"metadata": {
			"opttest-config": {
				"bucket": "ignored",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "bucket-a", vals.bucket)
	assert.True(t, vals.gc)
	assert.Equal(t, 3, vals.workers)
	assert.Equal(t, uint64(1024), vals.cache)

	err = ProcessConfig(map[string]map[string]map[string]any{
		"blob": {
			"opttest-config": {
				"cache-size": -1,
			},
		},
	})
	require.Error(t, err)
}

func TestProcessEnvVars(t *testing.T) {
	vals := registerOptionTestPlugin(t, "opttest-env")
	t.Setenv("UPDRAFT_DATABASE_BLOB_OPTTEST_ENV_BUCKET", "env-bucket")
	t.Setenv("UPDRAFT_DATABASE_BLOB_OPTTEST_ENV_CACHE_SIZE", "2048")
	require.NoError(t, ProcessEnvVars())
	assert.Equal(t, "env-bucket", vals.bucket)
	assert.Equal(t, uint64(2048), vals.cache)

	t.Setenv("UPDRAFT_DATABASE_BLOB_OPTTEST_ENV_GC", "not-a-bool")
	require.Error(t, ProcessEnvVars())
}

func TestProcessEnvVarsCustom(t *testing.T) {
	var dsn string
	Register(PluginEntry{
		Type:               PluginTypeMetadata,
		Name:               "opttest-custom",
		NewFromOptionsFunc: func() Plugin { return optionTestPlugin{} },
		Options: []PluginOption{
			{Name: "dsn", Type: PluginOptionTypeString, CustomEnvVar: "OPTTEST_DATABASE_URL", Dest: &dsn},
		},
	})
	t.Setenv("OPTTEST_DATABASE_URL", "postgres://custom")
	require.NoError(t, ProcessEnvVars())
	assert.Equal(t, "postgres://custom", dsn)

	// The generated name wins when both are set
	t.Setenv("UPDRAFT_DATABASE_METADATA_OPTTEST_CUSTOM_DSN", "postgres://generated")
	require.NoError(t, ProcessEnvVars())
	assert.Equal(t, "postgres://generated", dsn)
}

func TestPluginTypeName(t *testing.T) {
	assert.Equal(t, "blob", PluginTypeName(PluginTypeBlob))
	assert.Equal(t, "metadata", PluginTypeName(PluginTypeMetadata))
	assert.Equal(t, "unknown", PluginTypeName(PluginType(99)))
}
