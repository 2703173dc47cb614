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

package aws

import (
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin"
)

const defaultTimeout = 60 * time.Second

var (
	cmdlineOptions struct {
		endpoint        string
		bucket          string
		region          string
		prefix          string
		accessKeyId     string
		secretAccessKey string
		timeout         string
		pathStyle       bool
	}
	cmdlineOptionsMutex sync.RWMutex
)

// Register plugin. The S3_* env vars match the ones the upload service of
// the Node.js server used
func init() {
	cmdlineOptions.timeout = defaultTimeout.String()
	cmdlineOptions.pathStyle = true
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "s3",
			Description:        "S3 compatible asset store with presigned URLs",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "endpoint",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Endpoint of an S3 compatible service, AWS when empty",
					CustomEnvVar: "S3_ENDPOINT",
					Dest:         &(cmdlineOptions.endpoint),
				},
				{
					Name:         "bucket",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Bucket holding the asset files",
					CustomEnvVar: "S3_BUCKET",
					Dest:         &(cmdlineOptions.bucket),
				},
				{
					Name:         "region",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Bucket region, from the AWS config when empty",
					CustomEnvVar: "S3_REGION",
					Dest:         &(cmdlineOptions.region),
				},
				{
					Name:        "prefix",
					Type:        plugin.PluginOptionTypeString,
					Description: "Object key prefix for asset files",
					Dest:        &(cmdlineOptions.prefix),
				},
				{
					Name:         "access-key-id",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Access key ID, the default credential chain when empty",
					CustomEnvVar: "S3_ACCESS_KEY",
					Dest:         &(cmdlineOptions.accessKeyId),
				},
				{
					Name:         "secret-access-key",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Secret access key",
					CustomEnvVar: "S3_SECRET_KEY",
					Dest:         &(cmdlineOptions.secretAccessKey),
				},
				{
					Name:         "path-style",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Use path-style addressing with a custom endpoint",
					DefaultValue: true,
					Dest:         &(cmdlineOptions.pathStyle),
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
			fmt.Errorf("s3 blob: invalid timeout %q", opts.timeout),
		)
	}
	p, err := NewWithOptions(
		WithEndpoint(opts.endpoint),
		WithBucket(opts.bucket),
		WithRegion(opts.region),
		WithPrefix(opts.prefix),
		WithCredentials(opts.accessKeyId, opts.secretAccessKey),
		WithPathStyle(opts.pathStyle),
		WithTimeout(timeout),
	)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
