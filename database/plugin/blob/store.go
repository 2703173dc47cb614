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

package blob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin"
	"github.com/prometheus/client_golang/prometheus"

	// Register blob plugins
	_ "github.com/blinklabs-io/updraft/database/plugin/blob/aws"
	_ "github.com/blinklabs-io/updraft/database/plugin/blob/badger"
	_ "github.com/blinklabs-io/updraft/database/plugin/blob/gcs"
	_ "github.com/blinklabs-io/updraft/database/plugin/blob/minio"
)

// BlobStore holds build asset file contents by storage key
type BlobStore interface {
	plugin.Plugin

	Close() error
	// Put writes an object. The content type is stored as object metadata
	// by stores that support it
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the object contents or types.ErrBlobKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URL returns a time-limited URL for direct download of the object.
	// Stores without externally reachable objects return
	// types.ErrBlobURLUnsupported
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// New returns the started blob plugin selected by name
func New(
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (BlobStore, error) {
	// Get and start the plugin
	p, err := plugin.StartPlugin(
		plugin.PluginTypeBlob,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}

	// Type assert to BlobStore interface
	blobStore, ok := p.(BlobStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement BlobStore interface",
			pluginName,
		)
	}

	return blobStore, nil
}
