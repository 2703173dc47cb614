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

package bloblog_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/blinklabs-io/updraft/database/plugin/blob/internal/bloblog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := bloblog.New(
		slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})),
		"s3",
	)
	logger.Debugf("hidden %d", 1)
	assert.Zero(t, buf.Len())

	logger.Warningf("put %q failed", "demo/bundle.js")
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, `put "demo/bundle.js" failed`, record["msg"])
	assert.Equal(t, "database", record["component"])
	assert.Equal(t, "s3", record["backend"])
}

func TestNilLogger(t *testing.T) {
	logger := bloblog.New(nil, "gcs")
	logger.Errorf("discarded")
	logger.Infof("discarded")
}
