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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/blinklabs-io/updraft/database/plugin/blob/internal/bloblog"
	"github.com/blinklabs-io/updraft/database/plugin/blob/internal/blobmetrics"
	"github.com/blinklabs-io/updraft/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

// BlobStoreS3 stores asset files in an AWS S3 bucket
type BlobStoreS3 struct {
	promRegistry    prometheus.Registerer
	logger          *bloblog.Logger
	metrics         *blobmetrics.Metrics
	client          *s3.Client
	presignClient   *s3.PresignClient
	bucket          string
	prefix          string
	region          string
	endpoint        string
	accessKeyId     string
	secretAccessKey string
	timeout         time.Duration
	pathStyle       bool
}

// New creates a new S3-backed blob store from a location of the form
// "s3://bucket" or "s3://bucket/prefix"
func New(
	location string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*BlobStoreS3, error) {
	const scheme = "s3://"
	if !strings.HasPrefix(location, scheme) {
		return nil, errors.New(
			"s3 blob: expected location='s3://<bucket>[/prefix]'",
		)
	}
	path := strings.TrimPrefix(location, scheme)
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return nil, errors.New("s3 blob: invalid S3 path (missing bucket)")
	}
	keyPrefix := ""
	if len(parts) > 1 {
		keyPrefix = parts[1]
	}
	return NewWithOptions(
		WithBucket(parts[0]),
		WithPrefix(keyPrefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new S3-backed blob store using options
func NewWithOptions(opts ...BlobStoreS3OptionFunc) (*BlobStoreS3, error) {
	db := &BlobStoreS3{pathStyle: true}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = bloblog.New(nil, "s3")
	}
	// Normalize prefix to end in a single slash
	db.prefix = strings.Trim(db.prefix, "/")
	if db.prefix != "" {
		db.prefix += "/"
	}
	// Note: AWS config loading and validation happen in Start()
	return db, nil
}

// SetLogger implements the plugin.Instrumented interface
func (d *BlobStoreS3) SetLogger(logger *slog.Logger) {
	d.logger = bloblog.New(logger, "s3")
}

// SetPromRegistry implements the plugin.Instrumented interface
func (d *BlobStoreS3) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

func (d *BlobStoreS3) opContext(
	parent context.Context,
) (context.Context, context.CancelFunc) {
	timeout := d.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreS3) Start() error {
	if d.bucket == "" {
		return errors.New("s3 blob: bucket not set")
	}
	ctx, cancel := d.opContext(context.Background())
	defer cancel()

	var loadOpts []func(*config.LoadOptions) error
	if d.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(d.region))
	}
	if d.accessKeyId != "" {
		loadOpts = append(
			loadOpts,
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					d.accessKeyId,
					d.secretAccessKey,
					"",
				),
			),
		)
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("s3 blob: load default AWS config: %w", err)
	}

	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
			o.UsePathStyle = d.pathStyle
		}
	})
	d.presignClient = s3.NewPresignClient(d.client)

	if d.promRegistry != nil {
		d.metrics = blobmetrics.New(d.promRegistry, "s3")
	}
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreS3) Stop() error {
	// S3 client doesn't need explicit closing
	return nil
}

// Close implements the BlobStore interface
func (d *BlobStoreS3) Close() error {
	return d.Stop()
}

// Client returns the S3 client
func (d *BlobStoreS3) Client() *s3.Client {
	return d.client
}

// Bucket returns the bucket name
func (d *BlobStoreS3) Bucket() string {
	return d.bucket
}

// fullKey returns the S3 key with the configured prefix
func (d *BlobStoreS3) fullKey(key string) string {
	return d.prefix + key
}

func (d *BlobStoreS3) check(key string) error {
	if d.client == nil {
		return types.ErrBlobStoreUnavailable
	}
	if !types.ValidBlobKey(key) {
		return fmt.Errorf("%w: %q", types.ErrInvalidBlobKey, key)
	}
	return nil
}

// Put writes an object
func (d *BlobStoreS3) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	if err := d.check(key); err != nil {
		return err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := d.client.PutObject(ctx, input)
	d.metrics.Op("put", err)
	if err != nil {
		d.logger.Errorf("s3 put %q failed: %v", key, err)
		return err
	}
	d.metrics.Write(len(data))
	d.logger.Debugf("s3 put %q ok (%d bytes)", key, len(data))
	return nil
}

// Get reads an object
func (d *BlobStoreS3) Get(ctx context.Context, key string) ([]byte, error) {
	if err := d.check(key); err != nil {
		return nil, err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			d.metrics.Op("get", nil)
			return nil, types.ErrBlobKeyNotFound
		}
		d.metrics.Op("get", err)
		d.logger.Errorf("s3 get %q failed: %v", key, err)
		return nil, err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	d.metrics.Op("get", err)
	if err != nil {
		d.logger.Errorf("s3 read %q failed: %v", key, err)
		return nil, err
	}
	d.metrics.Read(len(data))
	return data, nil
}

// Delete removes an object
func (d *BlobStoreS3) Delete(ctx context.Context, key string) error {
	if err := d.check(key); err != nil {
		return err
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
	})
	if err != nil && isS3NotFound(err) {
		err = nil
	}
	d.metrics.Op("delete", err)
	if err != nil {
		d.logger.Errorf("s3 delete %q failed: %v", key, err)
		return err
	}
	return nil
}

// URL returns a presigned GET URL for an object
func (d *BlobStoreS3) URL(
	ctx context.Context,
	key string,
	expiry time.Duration,
) (string, error) {
	if err := d.check(key); err != nil {
		return "", err
	}
	presigned, err := d.presignClient.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(d.fullKey(key)),
		},
		s3.WithPresignExpires(expiry),
	)
	d.metrics.Op("presign", err)
	if err != nil {
		return "", fmt.Errorf("s3: failed to generate presigned url: %w", err)
	}
	return presigned.URL, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
