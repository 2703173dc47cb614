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
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, ":3000", cfg.listenAddress)
	assert.True(t, cfg.statsEnabled)
	assert.False(t, cfg.failClosed)
}

func TestConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithListenAddress("127.0.0.1:8080"),
		WithBaseURL("https://updates.example.com"),
		WithCorsOrigin("*"),
		WithSigning("sops", ""),
		WithSigningFailClosed(true),
		WithAssetURLExpiry(10*time.Minute),
		WithBlobPlugin("s3"),
		WithMetadataPlugin("postgres"),
		WithStatsRecording(false),
		WithShutdownTimeout(time.Second),
	)
	assert.Equal(t, "127.0.0.1:8080", cfg.listenAddress)
	assert.Equal(t, "https://updates.example.com", cfg.baseURL)
	assert.Equal(t, "*", cfg.corsOrigin)
	assert.Equal(t, "sops", cfg.decryptor)
	assert.True(t, cfg.failClosed)
	assert.Equal(t, 10*time.Minute, cfg.assetURLExpiry)
	assert.Equal(t, "s3", cfg.blobPlugin)
	assert.Equal(t, "postgres", cfg.metadataPlugin)
	assert.False(t, cfg.statsEnabled)
	assert.Equal(t, time.Second, cfg.shutdownTimeout)
}

func TestConfigValidate(t *testing.T) {
	testDefs := []struct {
		name    string
		opts    []ConfigOptionFunc
		wantErr bool
	}{
		{name: "defaults"},
		{name: "no listen address", opts: []ConfigOptionFunc{WithListenAddress("")}, wantErr: true},
		{name: "missing port", opts: []ConfigOptionFunc{WithListenAddress("localhost")}, wantErr: true},
		{name: "bad port", opts: []ConfigOptionFunc{WithListenAddress("localhost:99999")}, wantErr: true},
		{name: "bad decryptor", opts: []ConfigOptionFunc{WithSigning("vault", "")}, wantErr: true},
		{name: "negative expiry", opts: []ConfigOptionFunc{WithAssetURLExpiry(-time.Second)}, wantErr: true},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			s, err := New(NewConfig(testDef.opts...))
			if testDef.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, s.Stop())
		})
	}
}

func TestDefaultBaseURL(t *testing.T) {
	s, err := New(NewConfig(WithListenAddress("127.0.0.1:4000")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	assert.Equal(t, "http://127.0.0.1:4000", s.config.baseURL)
}

func TestDefaultBaseURLUnspecifiedHost(t *testing.T) {
	tests := []struct {
		listenAddress string
		expected      string
	}{
		{listenAddress: ":3000", expected: "http://localhost:3000"},
		{listenAddress: "0.0.0.0:3000", expected: "http://localhost:3000"},
		{listenAddress: "[::]:3000", expected: "http://localhost:3000"},
		{listenAddress: "[::1]:3000", expected: "http://[::1]:3000"},
		{listenAddress: "updates.internal:8080", expected: "http://updates.internal:8080"},
	}
	for _, tc := range tests {
		t.Run(tc.listenAddress, func(t *testing.T) {
			var logBuf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
			s, err := New(NewConfig(
				WithListenAddress(tc.listenAddress),
				WithLogger(logger),
			))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Stop() })
			assert.Equal(t, tc.expected, s.config.baseURL)
			if tc.expected == "http://localhost:3000" {
				assert.Contains(t, logBuf.String(), "no base URL configured")
			} else {
				assert.NotContains(t, logBuf.String(), "no base URL configured")
			}
		})
	}

	// An explicit base URL never warns
	var logBuf bytes.Buffer
	s, err := New(NewConfig(
		WithListenAddress("0.0.0.0:3000"),
		WithBaseURL("https://updates.example.com"),
		WithLogger(slog.New(slog.NewJSONHandler(&logBuf, nil))),
	))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	assert.Equal(t, "https://updates.example.com", s.config.baseURL)
	assert.NotContains(t, logBuf.String(), "no base URL configured")
}
