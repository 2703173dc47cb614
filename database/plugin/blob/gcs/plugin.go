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

package gcs

import (
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin"
)

const defaultTimeout = 60 * time.Second

var (
	cmdlineOptions struct {
		bucket          string
		prefix          string
		credentialsFile string
		signingAccount  string
		timeout         string
	}
	cmdlineOptionsMutex sync.RWMutex
)

// Register plugin
func init() {
	cmdlineOptions.timeout = defaultTimeout.String()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "gcs",
			Description:        "Google Cloud Storage asset store with signed URLs",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "bucket",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Bucket holding the asset files",
					CustomEnvVar: "GCS_BUCKET",
					Dest:         &(cmdlineOptions.bucket),
				},
				{
					Name:        "prefix",
					Type:        plugin.PluginOptionTypeString,
					Description: "Object name prefix for asset files",
					Dest:        &(cmdlineOptions.prefix),
				},
				{
					Name:         "credentials-file",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Service account credentials file, application default credentials when empty",
					CustomEnvVar: "GOOGLE_APPLICATION_CREDENTIALS",
					Dest:         &(cmdlineOptions.credentialsFile),
				},
				{
					Name:        "signing-account",
					Type:        plugin.PluginOptionTypeString,
					Description: "Service account email that signs asset URLs through IAM, for credentials without a private key",
					Dest:        &(cmdlineOptions.signingAccount),
				},
				{
					Name:         "timeout",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Timeout of a single storage operation",
					DefaultValue: defaultTimeout.String(),
					Dest:         &(cmdlineOptions.timeout),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := cmdlineOptions
	cmdlineOptionsMutex.RUnlock()

	timeout, err := time.ParseDuration(opts.timeout)
	if err != nil || timeout <= 0 {
		return plugin.NewErrorPlugin(
			fmt.Errorf("gcs blob: invalid timeout %q", opts.timeout),
		)
	}
	p, err := NewWithOptions(
		WithBucket(opts.bucket),
		WithPrefix(opts.prefix),
		WithCredentialsFile(opts.credentialsFile),
		WithSigningAccount(opts.signingAccount),
		WithTimeout(timeout),
	)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
