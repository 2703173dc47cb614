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

package plugin_test

import (
	"testing"

	"github.com/blinklabs-io/updraft/database/plugin"
	_ "github.com/blinklabs-io/updraft/database/plugin/blob/badger"
	_ "github.com/blinklabs-io/updraft/database/plugin/metadata/sqlite"
	"github.com/blinklabs-io/updraft/internal/config"
	"github.com/stretchr/testify/require"
)

// SetPluginOption mutates the options of the real default plugins, which is
// how the server points them at its data dir
func TestSetPluginOption(t *testing.T) {
	t.Cleanup(func() {
		_ = plugin.SetPluginOption(plugin.PluginTypeMetadata, config.DefaultMetadataPlugin, "data-dir", ".updraft")
		_ = plugin.SetPluginOption(plugin.PluginTypeMetadata, config.DefaultMetadataPlugin, "vacuum-interval", "24h0m0s")
		_ = plugin.SetPluginOption(plugin.PluginTypeBlob, config.DefaultBlobPlugin, "data-dir", ".updraft")
		_ = plugin.SetPluginOption(plugin.PluginTypeBlob, config.DefaultBlobPlugin, "block-cache-size", uint64(64<<20))
	})
	tests := []struct {
		name       string
		pluginType plugin.PluginType
		plugin     string
		option     string
		value      any
		wantErr    bool
	}{
		{name: "sqlite in-memory", pluginType: plugin.PluginTypeMetadata, plugin: config.DefaultMetadataPlugin, option: "data-dir", value: ""},
		{name: "sqlite wrong type", pluginType: plugin.PluginTypeMetadata, plugin: config.DefaultMetadataPlugin, option: "data-dir", value: 123, wantErr: true},
		{name: "sqlite vacuum interval", pluginType: plugin.PluginTypeMetadata, plugin: config.DefaultMetadataPlugin, option: "vacuum-interval", value: "1h"},
		{name: "unknown option ignored", pluginType: plugin.PluginTypeMetadata, plugin: config.DefaultMetadataPlugin, option: "does-not-exist", value: "x"},
		{name: "badger data dir", pluginType: plugin.PluginTypeBlob, plugin: config.DefaultBlobPlugin, option: "data-dir", value: t.TempDir()},
		{name: "badger uint", pluginType: plugin.PluginTypeBlob, plugin: config.DefaultBlobPlugin, option: "block-cache-size", value: uint64(32 << 20)},
		{name: "badger bool", pluginType: plugin.PluginTypeBlob, plugin: config.DefaultBlobPlugin, option: "gc", value: true},
		{name: "badger bool from string", pluginType: plugin.PluginTypeBlob, plugin: config.DefaultBlobPlugin, option: "gc", value: "true", wantErr: true},
		{name: "unknown plugin", pluginType: plugin.PluginTypeMetadata, plugin: "nonexistent", option: "data-dir", value: "x", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := plugin.SetPluginOption(tc.pluginType, tc.plugin, tc.option, tc.value)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
