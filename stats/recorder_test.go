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

package stats_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/event"
	"github.com/blinklabs-io/updraft/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryStore struct {
	mu      sync.Mutex
	entries []models.AppStatsEntry
	err     error
}

func (m *memoryStore) AddStatsEntry(_ context.Context, entry *models.AppStatsEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestRecorder(t *testing.T) {
	store := &memoryStore{}
	registry := prometheus.NewRegistry()
	bus := event.NewEventBus(nil, nil)
	recorder := stats.NewRecorder(store, nil, registry)
	recorder.Subscribe(bus)

	buildID := "build-1"
	current := "current"
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := event.NewEvent(stats.RequestEventType, stats.RequestEvent{
		AppID:           "app-1",
		BuildID:         &buildID,
		CurrentUpdateID: &current,
		RuntimeVersion:  "1.0.0",
		Platform:        models.PlatformAndroid,
		Channel:         "production",
	})
	evt.Timestamp = ts
	require.True(t, bus.PublishAsync(stats.RequestEventType, evt))
	bus.Stop()

	require.Equal(t, 1, store.len())
	entry := store.entries[0]
	assert.Equal(t, "app-1", entry.AppID)
	assert.Equal(t, &buildID, entry.BuildID)
	assert.Nil(t, entry.EmbeddedUpdateID)
	assert.Equal(t, models.PlatformAndroid, entry.Platform)
	assert.Equal(t, ts, entry.CreatedAt)
	expected := `
# HELP stats_entries_total stats entries written, by result
# TYPE stats_entries_total counter
stats_entries_total{result="ok"} 1
`
	require.NoError(
		t,
		testutil.GatherAndCompare(registry, strings.NewReader(expected), "stats_entries_total"),
	)
}

func TestRecorderStoreFailure(t *testing.T) {
	store := &memoryStore{err: errors.New("database is locked")}
	bus := event.NewEventBus(nil, nil)
	recorder := stats.NewRecorder(store, nil, nil)
	subId := recorder.Subscribe(bus)
	require.NotZero(t, subId)

	// Failures don't unsubscribe the recorder
	for range 3 {
		bus.Publish(stats.RequestEventType, event.NewEvent(stats.RequestEventType, stats.RequestEvent{AppID: "a"}))
	}
	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	bus.Publish(stats.RequestEventType, event.NewEvent(stats.RequestEventType, stats.RequestEvent{AppID: "a"}))
	assert.Equal(t, 1, store.len())

	// Unexpected payloads are ignored
	bus.Publish(stats.RequestEventType, event.NewEvent(stats.RequestEventType, "junk"))
	assert.Equal(t, 1, store.len())
	bus.Stop()
}
