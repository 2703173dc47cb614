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

package updraft

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/blinklabs-io/updraft/keystore"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	dataDir         string
	blobPlugin      string
	metadataPlugin  string
	listenAddress   string
	baseURL         string
	corsOrigin      string
	signingSecret   string
	decryptor       string
	tlsCertFilePath string
	tlsKeyFilePath  string
	assetURLExpiry  time.Duration
	shutdownTimeout time.Duration
	failClosed      bool
	tracing         bool
	tracingStdout   bool
	statsEnabled    bool
}

func (s *Server) configValidate() error {
	if s.config.listenAddress == "" {
		return errors.New("no listen address defined")
	}
	host, port, err := net.SplitHostPort(s.config.listenAddress)
	if err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid listen port %q: %w", port, err)
	}
	if s.config.baseURL == "" {
		s.config.baseURL = defaultBaseURL(host, port)
		if unspecifiedHost(host) {
			s.config.logger.Warn(
				"no base URL configured and listening on all interfaces, asset URLs will only resolve locally",
				"component", "updraft",
				"base_url", s.config.baseURL,
			)
		}
	}
	switch s.config.decryptor {
	case "", keystore.DecryptorAesGcm, keystore.DecryptorSops:
	default:
		return fmt.Errorf("unknown decryptor: %s", s.config.decryptor)
	}
	if s.config.assetURLExpiry < 0 {
		return fmt.Errorf("invalid asset URL expiry: %s", s.config.assetURLExpiry)
	}
	return nil
}

// defaultBaseURL derives the asset URL prefix from the listen address. An
// unspecified host can't be dialed by devices, so localhost stands in for it
func defaultBaseURL(host string, port string) string {
	if unspecifiedHost(host) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func unspecifiedHost(host string) bool {
	if host == "" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}

// ConfigOptionFunc is a type that represents functions that modify the server config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new updraft config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		listenAddress: ":3000",
		statsEnabled:  true,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory used by the
// local storage plugins
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithListenAddress specifies the host:port for the updates API. The default is :3000
func WithListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.listenAddress = address
	}
}

// WithBaseURL specifies the public URL prefix used for asset URLs in manifests.
// It defaults to http:// plus the listen address
func WithBaseURL(baseURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.baseURL = baseURL
	}
}

// WithCorsOrigin specifies the origin allowed to make cross-origin requests
func WithCorsOrigin(origin string) ConfigOptionFunc {
	return func(c *Config) {
		c.corsOrigin = origin
	}
}

// WithSigning specifies how stored signing keys are decrypted. The secret is
// only used by the aesgcm decryptor
func WithSigning(decryptor string, secret string) ConfigOptionFunc {
	return func(c *Config) {
		c.decryptor = decryptor
		c.signingSecret = secret
	}
}

// WithSigningFailClosed makes signing failures return a server error instead
// of an unsigned response
func WithSigningFailClosed(failClosed bool) ConfigOptionFunc {
	return func(c *Config) {
		c.failClosed = failClosed
	}
}

// WithTlsCertFilePath specifies the path to the TLS certificate for the API listener
func WithTlsCertFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsCertFilePath = path
	}
}

// WithTlsKeyFilePath specifies the path to the TLS key for the API listener
func WithTlsKeyFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsKeyFilePath = path
	}
}

// WithAssetURLExpiry specifies how long presigned asset URLs stay valid
func WithAssetURLExpiry(expiry time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.assetURLExpiry = expiry
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithStatsRecording enables or disables writing download statistics for
// apps that ask for them. It's enabled by default
func WithStatsRecording(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.statsEnabled = enabled
	}
}
