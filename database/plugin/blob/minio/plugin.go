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

package minio

import (
	"sync"

	"github.com/blinklabs-io/updraft/database/plugin"
)

var (
	cmdlineOptions struct {
		endpoint     string
		bucket       string
		region       string
		prefix       string
		accessKey    string
		secretKey    string
		useSSL       bool
		createBucket bool
	}
	cmdlineOptionsMutex sync.RWMutex
)

// Register plugin
func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "minio",
			Description:        "MinIO blob store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "endpoint",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MinIO server host:port",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.endpoint),
				},
				{
					Name:         "bucket",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Bucket name",
					DefaultValue: "updraft-assets",
					Dest:         &(cmdlineOptions.bucket),
				},
				{
					Name:         "region",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Bucket region",
					DefaultValue: "us-east-1",
					Dest:         &(cmdlineOptions.region),
				},
				{
					Name:         "prefix",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Object name prefix",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.prefix),
				},
				{
					Name:         "access-key",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Access key",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.accessKey),
				},
				{
					Name:         "secret-key",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Secret key",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.secretKey),
				},
				{
					Name:         "ssl",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Use TLS",
					DefaultValue: true,
					Dest:         &(cmdlineOptions.useSSL),
				},
				{
					Name:         "create-bucket",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Create the bucket on start if it doesn't exist",
					DefaultValue: false,
					Dest:         &(cmdlineOptions.createBucket),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := []BlobStoreMinioOptionFunc{
		WithEndpoint(cmdlineOptions.endpoint),
		WithBucket(cmdlineOptions.bucket),
		WithRegion(cmdlineOptions.region),
		WithPrefix(cmdlineOptions.prefix),
		WithCredentials(cmdlineOptions.accessKey, cmdlineOptions.secretKey),
		WithSSL(cmdlineOptions.useSSL),
		WithCreateBucket(cmdlineOptions.createBucket),
	}
	cmdlineOptionsMutex.RUnlock()
	p, err := New(opts...)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
