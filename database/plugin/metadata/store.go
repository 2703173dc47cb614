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

package metadata

import (
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/updraft/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	// Register metadata plugins
	_ "github.com/blinklabs-io/updraft/database/plugin/metadata/mysql"
	_ "github.com/blinklabs-io/updraft/database/plugin/metadata/postgres"
	_ "github.com/blinklabs-io/updraft/database/plugin/metadata/sqlite"
)

// MetadataStore is a relational store for apps, runtimes, builds and
// statistics. The schema is migrated when the plugin starts
type MetadataStore interface {
	plugin.Plugin

	Close() error
	DB() *gorm.DB
}

// New returns the started metadata plugin selected by name
func New(
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	p, err := plugin.StartPlugin(
		plugin.PluginTypeMetadata,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
