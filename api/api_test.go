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

package api

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestServerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New(Config{ListenAddress: "127.0.0.1:0"})
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{},
	}
	resp, err := client.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "Expo Updates Server", string(body))
	client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Empty(t, s.Addr())
	// Stopping twice is a no-op
	require.NoError(t, s.Stop(ctx))
}

func TestServerStopOnCancel(t *testing.T) {
	s := New(Config{ListenAddress: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	require.Eventually(t, func() bool {
		return s.Addr() == ""
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGrpcHealthChecker(t *testing.T) {
	ctx := context.Background()
	checker := &healthChecker{server: New(Config{})}
	resp, err := checker.Check(ctx, &grpchealth.CheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpchealth.StatusServing, resp.Status)

	checker = &healthChecker{server: New(Config{Health: errPinger{}})}
	resp, err = checker.Check(ctx, &grpchealth.CheckRequest{Service: grpchealth.HealthV1ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpchealth.StatusNotServing, resp.Status)

	_, err = checker.Check(ctx, &grpchealth.CheckRequest{Service: "other.v1.Service"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}
