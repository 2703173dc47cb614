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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/blinklabs-io/updraft/database/plugin/blob/internal/bloblog"
	"github.com/blinklabs-io/updraft/database/plugin/blob/internal/blobmetrics"
	"github.com/blinklabs-io/updraft/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"
)

// BlobStoreGCS stores asset files in a Google Cloud Storage bucket
type BlobStoreGCS struct {
	promRegistry    prometheus.Registerer
	logger          *bloblog.Logger
	metrics         *blobmetrics.Metrics
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
	signingAccount  string
	timeout         time.Duration
}

// New creates a new GCS-backed blob store from a location of the form
// "gcs://bucket" or "gcs://bucket/prefix"
func New(
	location string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*BlobStoreGCS, error) {
	const scheme = "gcs://"
	path, ok := strings.CutPrefix(location, scheme)
	if !ok {
		return nil, errors.New(
			"gcs blob: expected location='gcs://<bucket>[/prefix]'",
		)
	}
	bucketName, keyPrefix, _ := strings.Cut(path, "/")
	if bucketName == "" {
		return nil, errors.New("gcs blob: bucket not set")
	}
	return NewWithOptions(
		WithBucket(bucketName),
		WithPrefix(keyPrefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new GCS-backed blob store using options
func NewWithOptions(opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	db := &BlobStoreGCS{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = bloblog.New(nil, "gcs")
	}
	db.prefix = strings.Trim(db.prefix, "/")
	if db.prefix != "" {
		db.prefix += "/"
	}
	return db, nil
}

// ValidateCredentials checks that a credentials file exists and is
// readable. An empty path selects application default credentials
func ValidateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	f, err := os.Open(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf(
				"GCS credentials file does not exist: %s",
				credentialsFile,
			)
		}
		return fmt.Errorf("GCS credentials file is not readable: %w", err)
	}
	return f.Close()
}

// SetLogger implements the plugin.Instrumented interface
func (d *BlobStoreGCS) SetLogger(logger *slog.Logger) {
	d.logger = bloblog.New(logger, "gcs")
}

// SetPromRegistry implements the plugin.Instrumented interface
func (d *BlobStoreGCS) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreGCS) Start() error {
	if d.bucketName == "" {
		return errors.New("gcs blob: bucket not set")
	}
	if err := ValidateCredentials(d.credentialsFile); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if d.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(d.credentialsFile),
		)
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf(
			"gcs blob: failed in creating storage client: %w",
			err,
		)
	}
	d.client = client
	d.bucket = client.Bucket(d.bucketName)
	if d.promRegistry != nil {
		d.metrics = blobmetrics.New(d.promRegistry, "gcs")
	}
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

// Close closes the GCS client
func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	d.bucket = nil
	return err
}

// Client returns the GCS client
func (d *BlobStoreGCS) Client() *storage.Client {
	return d.client
}

// Bucket returns the bucket handle
func (d *BlobStoreGCS) Bucket() *storage.BucketHandle {
	return d.bucket
}

func (d *BlobStoreGCS) opContext(
	parent context.Context,
) (context.Context, context.CancelFunc) {
	timeout := d.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(parent, timeout)
}

func (d *BlobStoreGCS) object(key string) (*storage.ObjectHandle, error) {
	if d.bucket == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	if !types.ValidBlobKey(key) {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidBlobKey, key)
	}
	return d.bucket.Object(d.prefix + key), nil
}

// Put writes an object
func (d *BlobStoreGCS) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	obj, err := d.object(key)
	if err != nil {
		return err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		d.metrics.Op("put", err)
		d.logger.Errorf("gcs put %q failed: %v", key, err)
		return err
	}
	err = w.Close()
	d.metrics.Op("put", err)
	if err != nil {
		d.logger.Errorf("gcs put %q failed: %v", key, err)
		return err
	}
	d.metrics.Write(len(data))
	return nil
}

// Get reads an object
func (d *BlobStoreGCS) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := d.object(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			d.metrics.Op("get", nil)
			return nil, types.ErrBlobKeyNotFound
		}
		d.metrics.Op("get", err)
		d.logger.Errorf("gcs get %q failed: %v", key, err)
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	d.metrics.Op("get", err)
	if err != nil {
		return nil, err
	}
	d.metrics.Read(len(data))
	return data, nil
}

// Delete removes an object
func (d *BlobStoreGCS) Delete(ctx context.Context, key string) error {
	obj, err := d.object(key)
	if err != nil {
		return err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	err = obj.Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		err = nil
	}
	d.metrics.Op("delete", err)
	return err
}

// URL returns a V4 signed GET URL for an object
func (d *BlobStoreGCS) URL(
	_ context.Context,
	key string,
	expiry time.Duration,
) (string, error) {
	if _, err := d.object(key); err != nil {
		return "", err
	}
	u, err := d.bucket.SignedURL(
		d.prefix+key,
		&storage.SignedURLOptions{
			GoogleAccessID: d.signingAccount,
			Scheme:         storage.SigningSchemeV4,
			Method:         "GET",
			Expires:        time.Now().Add(expiry),
		},
	)
	d.metrics.Op("presign", err)
	if err != nil {
		return "", fmt.Errorf("gcs: failed to generate signed url: %w", err)
	}
	return u, nil
}
