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

package badger

import (
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin"
)

// Asset stores hold a few builds per runtime, so the caches are far smaller
// than badger's defaults
const (
	DefaultBlockCacheSize = 64 << 20
	DefaultIndexCacheSize = 16 << 20
	DefaultGcInterval     = 5 * time.Minute
)

var (
	cmdlineOptions struct {
		dataDir        string
		gcInterval     string
		blockCacheSize uint64
		indexCacheSize uint64
		gcEnabled      bool
		compression    bool
	}
	cmdlineOptionsMutex sync.RWMutex
)

// initCmdlineOptions sets default values for cmdlineOptions
func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.dataDir = ".updraft"
	cmdlineOptions.gcInterval = DefaultGcInterval.String()
	cmdlineOptions.blockCacheSize = DefaultBlockCacheSize
	cmdlineOptions.indexCacheSize = DefaultIndexCacheSize
	cmdlineOptions.gcEnabled = true
	cmdlineOptions.compression = true
}

// Register plugin
func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "badger",
			Description:        "BadgerDB local asset store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Data directory for badger asset storage, empty for in-memory",
					DefaultValue: ".updraft",
					Dest:         &(cmdlineOptions.dataDir),
				},
				{
					Name:         "block-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Block cache size in bytes",
					DefaultValue: uint64(DefaultBlockCacheSize),
					Dest:         &(cmdlineOptions.blockCacheSize),
				},
				{
					Name:         "index-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Index cache size in bytes",
					DefaultValue: uint64(DefaultIndexCacheSize),
					Dest:         &(cmdlineOptions.indexCacheSize),
				},
				{
					Name:         "gc",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Reclaim space of deleted assets with value log GC",
					DefaultValue: true,
					Dest:         &(cmdlineOptions.gcEnabled),
				},
				{
					Name:         "gc-interval",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Interval between value log GC runs",
					DefaultValue: DefaultGcInterval.String(),
					Dest:         &(cmdlineOptions.gcInterval),
				},
				{
					Name:         "compression",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Compress stored assets with snappy",
					DefaultValue: true,
					Dest:         &(cmdlineOptions.compression),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := cmdlineOptions
	cmdlineOptionsMutex.RUnlock()

	gcInterval, err := time.ParseDuration(opts.gcInterval)
	if err != nil || gcInterval <= 0 {
		return plugin.NewErrorPlugin(
			fmt.Errorf("invalid gc-interval %q", opts.gcInterval),
		)
	}
	p, err := New(
		WithDataDir(opts.dataDir),
		WithBlockCacheSize(opts.blockCacheSize),
		WithIndexCacheSize(opts.indexCacheSize),
		WithGc(opts.gcEnabled),
		WithGcInterval(gcInterval),
		WithCompression(opts.compression),
	)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
