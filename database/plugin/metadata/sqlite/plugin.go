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

package sqlite

import (
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin"
)

const defaultVacuumInterval = 24 * time.Hour

var (
	cmdlineOptions struct {
		dataDir        string
		vacuumInterval string
	}
	cmdlineOptionsMutex sync.RWMutex
)

// initCmdlineOptions sets default values for cmdlineOptions
func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.dataDir = ".updraft"
	cmdlineOptions.vacuumInterval = defaultVacuumInterval.String()
}

// Register plugin
func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "sqlite",
			Description:        "SQLite relational database",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Data directory for sqlite storage, empty for in-memory",
					DefaultValue: ".updraft",
					Dest:         &(cmdlineOptions.dataDir),
				},
				{
					Name:         "vacuum-interval",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Interval between VACUUM runs, 0 to disable",
					DefaultValue: defaultVacuumInterval.String(),
					Dest:         &(cmdlineOptions.vacuumInterval),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	dataDir := cmdlineOptions.dataDir
	vacuumInterval := cmdlineOptions.vacuumInterval
	cmdlineOptionsMutex.RUnlock()

	interval, err := parseInterval(vacuumInterval)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	// Logger and promRegistry are set through plugin.Instrumented
	p, err := NewWithOptions(
		WithDataDir(dataDir),
		WithVacuumInterval(interval),
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}

func parseInterval(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid vacuum-interval: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid vacuum-interval: %s", s)
	}
	return d, nil
}
