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
	"log/slog"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin/blob/internal/bloblog"
	"github.com/prometheus/client_golang/prometheus"
)

type BlobStoreS3OptionFunc func(*BlobStoreS3)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.logger = bloblog.New(logger, "s3")
	}
}

// WithPromRegistry specifies the registry for blob operation metrics
func WithPromRegistry(registry prometheus.Registerer) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.promRegistry = registry
	}
}

// WithBucket specifies the S3 bucket name
func WithBucket(bucket string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.bucket = bucket
	}
}

// WithRegion specifies the AWS region
func WithRegion(region string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.region = region
	}
}

// WithPrefix specifies the S3 object prefix
func WithPrefix(prefix string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.prefix = prefix
	}
}

// WithTimeout specifies the timeout of config loading and of a single
// storage operation
func WithTimeout(timeout time.Duration) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.timeout = timeout
	}
}

// WithEndpoint specifies the endpoint of an S3 compatible service, such as
// MinIO, Cloudflare R2 or DigitalOcean Spaces
func WithEndpoint(endpoint string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.endpoint = endpoint
	}
}

// WithCredentials specifies static access credentials. When unset, the
// default AWS credential chain is used
func WithCredentials(accessKeyId string, secretAccessKey string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.accessKeyId = accessKeyId
		b.secretAccessKey = secretAccessKey
	}
}

// WithPathStyle specifies whether requests to a custom endpoint use
// path-style addressing. It's ignored for AWS itself
func WithPathStyle(enabled bool) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.pathStyle = enabled
	}
}
