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
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type BlobStoreMinioOptionFunc func(*BlobStoreMinio)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.promRegistry = registry
	}
}

// WithEndpoint specifies the MinIO server host:port
func WithEndpoint(endpoint string) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.endpoint = endpoint
	}
}

// WithBucket specifies the bucket name
func WithBucket(bucket string) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.bucket = bucket
	}
}

// WithRegion specifies the bucket region. Setting it avoids a bucket
// location lookup when presigning
func WithRegion(region string) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.region = region
	}
}

// WithPrefix specifies the object name prefix
func WithPrefix(prefix string) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.prefix = prefix
	}
}

// WithCredentials specifies the static access and secret keys
func WithCredentials(accessKey string, secretKey string) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.accessKey = accessKey
		b.secretKey = secretKey
	}
}

// WithSSL specifies whether to use TLS
func WithSSL(useSSL bool) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.useSSL = useSSL
	}
}

// WithCreateBucket specifies whether a missing bucket is created on start
func WithCreateBucket(create bool) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.createBucket = create
	}
}

// WithTimeout specifies the timeout for individual operations
func WithTimeout(timeout time.Duration) BlobStoreMinioOptionFunc {
	return func(b *BlobStoreMinio) {
		b.timeout = timeout
	}
}
