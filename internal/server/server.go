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

// Package server runs the updates server from the loaded configuration
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/blinklabs-io/updraft"
	"github.com/blinklabs-io/updraft/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options converts the loaded configuration into server options
func Options(cfg *config.Config, logger *slog.Logger) []updraft.ConfigOptionFunc {
	return []updraft.ConfigOptionFunc{
		updraft.WithLogger(logger),
		updraft.WithDatabasePath(cfg.DatabasePath),
		updraft.WithBlobPlugin(cfg.BlobPlugin),
		updraft.WithMetadataPlugin(cfg.MetadataPlugin),
		updraft.WithListenAddress(
			net.JoinHostPort(cfg.BindAddr, strconv.FormatUint(uint64(cfg.Port), 10)),
		),
		updraft.WithBaseURL(cfg.BaseUrl),
		updraft.WithCorsOrigin(cfg.CorsOrigin),
		updraft.WithSigning(cfg.Signing.Decryptor, cfg.Signing.Secret),
		updraft.WithSigningFailClosed(cfg.Signing.FailClosed),
		updraft.WithTlsCertFilePath(cfg.TlsCertFilePath),
		updraft.WithTlsKeyFilePath(cfg.TlsKeyFilePath),
		updraft.WithAssetURLExpiry(cfg.AssetUrlExpiry),
		updraft.WithShutdownTimeout(cfg.ShutdownTimeout),
		updraft.WithTracing(cfg.Tracing),
		updraft.WithTracingStdout(cfg.TracingStdout),
	}
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", redacted(cfg)), "component", "server")
	s, err := updraft.New(
		updraft.NewConfig(
			append(
				Options(cfg, logger),
				// Enable metrics with default prometheus registry
				updraft.WithPrometheusRegistry(prometheus.DefaultRegisterer),
			)...,
		),
	)
	if err != nil {
		return err
	}
	// Metrics listener
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsAddr := net.JoinHostPort(
		cfg.BindAddr,
		strconv.FormatUint(uint64(cfg.MetricsPort), 10),
	)
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	metricsErr := make(chan error, 1)
	if cfg.MetricsPort > 0 {
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "server",
		)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				metricsErr <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Run(signalCtx)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown", "component", "server")
		runErr = <-errChan
	case runErr = <-errChan:
	case runErr = <-metricsErr:
	}
	if stopErr := s.Stop(); stopErr != nil {
		logger.Error("shutdown errors occurred", "component", "server", "error", stopErr)
		runErr = errors.Join(runErr, stopErr)
	}
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.ShutdownTimeout,
	)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "component", "server", "error", err)
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("shutdown complete", "component", "server")
	return nil
}

// redacted returns a copy of the config that is safe to log
func redacted(cfg *config.Config) config.Config {
	ret := *cfg
	if ret.Signing.Secret != "" {
		ret.Signing.Secret = "REDACTED"
	}
	return ret
}
