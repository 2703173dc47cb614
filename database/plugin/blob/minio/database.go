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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin/blob/internal/blobmetrics"
	"github.com/blinklabs-io/updraft/database/types"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
)

// BlobStoreMinio stores asset files in a MinIO (or other S3 API compatible)
// bucket
type BlobStoreMinio struct {
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	metrics      *blobmetrics.Metrics
	client       *minio.Client
	endpoint     string
	bucket       string
	region       string
	prefix       string
	accessKey    string
	secretKey    string
	timeout      time.Duration
	useSSL       bool
	createBucket bool
}

// New creates a new MinIO-backed blob store. The client is created by Start()
func New(opts ...BlobStoreMinioOptionFunc) (*BlobStoreMinio, error) {
	db := &BlobStoreMinio{
		useSSL: true,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	db.prefix = strings.Trim(db.prefix, "/")
	if db.prefix != "" {
		db.prefix += "/"
	}
	return db, nil
}

// SetLogger implements the plugin.Instrumented interface
func (d *BlobStoreMinio) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Instrumented interface
func (d *BlobStoreMinio) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

func (d *BlobStoreMinio) opContext(
	parent context.Context,
) (context.Context, context.CancelFunc) {
	timeout := d.timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreMinio) Start() error {
	if d.endpoint == "" {
		return errors.New("minio blob: endpoint not set")
	}
	if d.bucket == "" {
		return errors.New("minio blob: bucket not set")
	}
	client, err := minio.New(d.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(d.accessKey, d.secretKey, ""),
		Secure: d.useSSL,
		Region: d.region,
	})
	if err != nil {
		return fmt.Errorf("minio blob: failed to create client: %w", err)
	}
	if d.createBucket {
		ctx, cancel := d.opContext(context.Background())
		defer cancel()
		exists, err := client.BucketExists(ctx, d.bucket)
		if err != nil {
			return fmt.Errorf("minio blob: check bucket: %w", err)
		}
		if !exists {
			err := client.MakeBucket(
				ctx,
				d.bucket,
				minio.MakeBucketOptions{Region: d.region},
			)
			if err != nil {
				return fmt.Errorf("minio blob: create bucket: %w", err)
			}
			d.logger.Info(
				"created bucket "+d.bucket,
				"component", "database",
			)
		}
	}
	d.client = client
	if d.promRegistry != nil {
		d.metrics = blobmetrics.New(d.promRegistry, "minio")
	}
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreMinio) Stop() error {
	return nil
}

// Close implements the BlobStore interface
func (d *BlobStoreMinio) Close() error {
	return d.Stop()
}

func (d *BlobStoreMinio) objectName(key string) (string, error) {
	if d.client == nil {
		return "", types.ErrBlobStoreUnavailable
	}
	if !types.ValidBlobKey(key) {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidBlobKey, key)
	}
	return d.prefix + key, nil
}

// Put writes an object
func (d *BlobStoreMinio) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	name, err := d.objectName(key)
	if err != nil {
		return err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	_, err = d.client.PutObject(
		ctx,
		d.bucket,
		name,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	d.metrics.Op("put", err)
	if err != nil {
		d.logger.Error(
			fmt.Sprintf("minio put %q failed: %s", key, err),
			"component", "database",
		)
		return err
	}
	d.metrics.Write(len(data))
	return nil
}

// Get reads an object
func (d *BlobStoreMinio) Get(ctx context.Context, key string) ([]byte, error) {
	name, err := d.objectName(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	obj, err := d.client.GetObject(ctx, d.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		d.metrics.Op("get", err)
		return nil, err
	}
	defer obj.Close()
	// Errors from the request surface on first read
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			d.metrics.Op("get", nil)
			return nil, types.ErrBlobKeyNotFound
		}
		d.metrics.Op("get", err)
		d.logger.Error(
			fmt.Sprintf("minio get %q failed: %s", key, err),
			"component", "database",
		)
		return nil, err
	}
	d.metrics.Op("get", nil)
	d.metrics.Read(len(data))
	return data, nil
}

// Delete removes an object. Removing a missing object is not an error
func (d *BlobStoreMinio) Delete(ctx context.Context, key string) error {
	name, err := d.objectName(key)
	if err != nil {
		return err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	err = d.client.RemoveObject(ctx, d.bucket, name, minio.RemoveObjectOptions{})
	d.metrics.Op("delete", err)
	return err
}

// URL returns a presigned GET URL for an object
func (d *BlobStoreMinio) URL(
	ctx context.Context,
	key string,
	expiry time.Duration,
) (string, error) {
	name, err := d.objectName(key)
	if err != nil {
		return "", err
	}
	u, err := d.client.PresignedGetObject(ctx, d.bucket, name, expiry, url.Values{})
	d.metrics.Op("presign", err)
	if err != nil {
		return "", fmt.Errorf("minio: failed to generate presigned url: %w", err)
	}
	return u.String(), nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
