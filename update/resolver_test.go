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

package update_test

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/database/types"
	"github.com/blinklabs-io/updraft/event"
	"github.com/blinklabs-io/updraft/expo"
	"github.com/blinklabs-io/updraft/stats"
	"github.com/blinklabs-io/updraft/update"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bundleHash = "abc1230000000000000000000000000000000000000000000000000000000000"

var (
	testNow       = time.Date(2025, 6, 1, 10, 20, 30, 456_000_000, time.UTC)
	testUpdatedAt = time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)
)

type fakeStore struct {
	app        *models.App
	runtime    *models.AppRuntime
	assets     []models.BuildAsset
	lookupErr  error
	assetCalls int
}

func (f *fakeStore) LookupApp(
	_ context.Context,
	appID string,
	organizationID string,
	_ string,
	_ models.Platform,
	_ string,
) (*models.App, *models.AppRuntime, error) {
	if f.lookupErr != nil {
		return nil, nil, f.lookupErr
	}
	if f.app == nil || f.app.ID != appID || f.app.OrganizationID != organizationID {
		return nil, nil, types.ErrAppNotFound
	}
	return f.app, f.runtime, nil
}

func (f *fakeStore) BuildAssets(_ context.Context, _ string) ([]models.BuildAsset, error) {
	f.assetCalls++
	return f.assets, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (f *fakePublisher) PublishAsync(eventType event.EventType, evt event.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	evt.Type = eventType
	f.events = append(f.events, evt)
	return true
}

func strPtr(s string) *string {
	return &s
}

func newStore() *fakeStore {
	return &fakeStore{
		app: &models.App{ID: "app-x", OrganizationID: "org-1"},
	}
}

func activeRuntime(draft bool) *models.AppRuntime {
	state := models.BuildStateFinalized
	if draft {
		state = models.BuildStateDraft
	}
	build := &models.Build{
		ID:        "build-1",
		State:     state,
		UpdatedAt: testUpdatedAt,
	}
	return &models.AppRuntime{
		ID:             "runtime-1",
		RuntimeVersion: "1.0.0",
		Platform:       models.PlatformIOS,
		Channel:        "production",
		ActiveBuildID:  &build.ID,
		ActiveBuild:    build,
	}
}

func rollbackRuntime() *models.AppRuntime {
	return &models.AppRuntime{
		ID:             "runtime-1",
		RuntimeVersion: "1.0.0",
		Platform:       models.PlatformIOS,
		Channel:        "production",
		IsRollback:     true,
	}
}

func testAssets() []models.BuildAsset {
	return []models.BuildAsset{
		{ID: "bundle-1", Type: models.AssetTypeBundle, Hash: bundleHash, MD5Key: "bundle-md5", ContentType: "application/javascript"},
		{ID: "asset-1", Type: models.AssetTypeAsset, Hash: bundleHash, MD5Key: "asset-md5", ContentType: "image/png", Extension: ".png"},
	}
}

func newRequest(protocol int) *expo.UpdateRequest {
	return &expo.UpdateRequest{
		ProtocolVersion: protocol,
		Platform:        models.PlatformIOS,
		RuntimeVersion:  "1.0.0",
		AppID:           "app-x",
		OrganizationID:  "org-1",
		Channel:         "production",
	}
}

func newResolver(store update.Store, publisher update.Publisher) *update.Resolver {
	return update.NewResolver(update.ResolverConfig{
		Store:     store,
		Publisher: publisher,
		BaseURL:   "https://ota.example.com",
		Now:       func() time.Time { return testNow },
	})
}

// Scenario A
func TestRuntimeNotFound(t *testing.T) {
	r := newResolver(newStore(), nil)
	res, err := r.Resolve(context.Background(), newRequest(1))
	require.NoError(t, err)
	require.NotNil(t, res.Directive)
	assert.Nil(t, res.Manifest)
	assert.Equal(t, expo.DirectiveNoUpdateAvailable, res.Directive.Type)
}

// Scenario B
func TestDraftBuild(t *testing.T) {
	store := newStore()
	store.runtime = activeRuntime(true)
	store.assets = testAssets()
	res, err := newResolver(store, nil).Resolve(context.Background(), newRequest(1))
	require.NoError(t, err)
	require.NotNil(t, res.Directive)
	assert.Equal(t, expo.DirectiveNoUpdateAvailable, res.Directive.Type)
	assert.Zero(t, store.assetCalls, "assets are only read for manifests")
}

func TestNoActiveBuild(t *testing.T) {
	store := newStore()
	store.runtime = activeRuntime(false)
	store.runtime.ActiveBuild = nil
	store.runtime.ActiveBuildID = nil
	res, err := newResolver(store, nil).Resolve(context.Background(), newRequest(1))
	require.NoError(t, err)
	assert.Equal(t, expo.DirectiveNoUpdateAvailable, res.Directive.Type)
}

// Scenario C
func TestManifest(t *testing.T) {
	store := newStore()
	store.runtime = activeRuntime(false)
	store.assets = testAssets()
	for _, protocol := range []int{0, 1} {
		res, err := newResolver(store, nil).Resolve(context.Background(), newRequest(protocol))
		require.NoError(t, err)
		require.NotNil(t, res.Manifest)
		assert.Nil(t, res.Directive)
		assert.Equal(t, "build-1", res.BuildID)

		raw, err := hex.DecodeString(bundleHash)
		require.NoError(t, err)
		m := res.Manifest
		assert.Equal(t, "bundle-md5", m.LaunchAsset.Key)
		assert.Equal(t, base64.RawURLEncoding.EncodeToString(raw), m.LaunchAsset.Hash)
		assert.Equal(t, "https://ota.example.com/expo/assets/bundle-1", m.LaunchAsset.URL)
		require.Len(t, m.Assets, 1)
		assert.Equal(t, "asset-md5", m.Assets[0].Key)
		assert.Equal(t, expo.ManifestID("build-1", "1.0.0", testUpdatedAt), m.ID)
	}
}

func TestManifestMissingBundle(t *testing.T) {
	store := newStore()
	store.runtime = activeRuntime(false)
	store.assets = testAssets()[1:]
	_, err := newResolver(store, nil).Resolve(context.Background(), newRequest(1))
	require.ErrorIs(t, err, expo.ErrNoBundle)
}

// Scenario D
func TestRollbackAlreadyEmbedded(t *testing.T) {
	store := newStore()
	store.runtime = rollbackRuntime()
	req := newRequest(1)
	req.CurrentUpdateID = strPtr("E1")
	req.EmbeddedUpdateID = strPtr("E1")
	res, err := newResolver(store, nil).Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, expo.DirectiveNoUpdateAvailable, res.Directive.Type)

	// Two absent ids count as equal
	res, err = newResolver(store, nil).Resolve(context.Background(), newRequest(1))
	require.NoError(t, err)
	assert.Equal(t, expo.DirectiveNoUpdateAvailable, res.Directive.Type)
}

// Scenario E
func TestRollback(t *testing.T) {
	store := newStore()
	store.runtime = rollbackRuntime()
	req := newRequest(1)
	req.CurrentUpdateID = strPtr("E1")
	req.EmbeddedUpdateID = strPtr("E2")
	res, err := newResolver(store, nil).Resolve(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Directive)
	assert.Equal(t, expo.DirectiveRollBackToEmbedded, res.Directive.Type)
	require.NotNil(t, res.Directive.Parameters)
	assert.Equal(t, "2025-06-01T10:20:30.456Z", res.Directive.Parameters.CommitTime)
}

func TestRollbackWinsOverActiveBuild(t *testing.T) {
	store := newStore()
	store.runtime = activeRuntime(false)
	store.runtime.IsRollback = true
	store.assets = testAssets()
	req := newRequest(1)
	req.CurrentUpdateID = strPtr("E1")
	req.EmbeddedUpdateID = strPtr("E2")
	res, err := newResolver(store, nil).Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.Manifest)
	assert.Equal(t, expo.DirectiveRollBackToEmbedded, res.Directive.Type)
}

func TestNoUpdateConvergence(t *testing.T) {
	store := newStore()
	store.runtime = activeRuntime(false)
	store.assets = testAssets()
	r := newResolver(store, nil)
	res, err := r.Resolve(context.Background(), newRequest(1))
	require.NoError(t, err)
	require.NotNil(t, res.Manifest)

	// A device that applied the manifest gets no further update
	req := newRequest(1)
	req.CurrentUpdateID = strPtr(res.Manifest.ID)
	for range 3 {
		res, err := r.Resolve(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, res.Directive)
		assert.Equal(t, expo.DirectiveNoUpdateAvailable, res.Directive.Type)
	}

	// Protocol 0 keeps serving the manifest
	req.ProtocolVersion = 0
	res, err = r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, res.Manifest)

	// Bumping updatedAt produces a new update
	store.runtime.ActiveBuild.UpdatedAt = testUpdatedAt.Add(time.Second)
	req.ProtocolVersion = 1
	res, err = r.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Manifest)
	assert.NotEqual(t, *req.CurrentUpdateID, res.Manifest.ID)
}

func TestProtocolZeroGating(t *testing.T) {
	testDefs := []struct {
		name    string
		runtime *models.AppRuntime
		err     error
	}{
		{name: "missing runtime", runtime: nil, err: update.ErrDirectiveUnsupported},
		{name: "draft build", runtime: activeRuntime(true), err: update.ErrDirectiveUnsupported},
		{name: "rollback", runtime: rollbackRuntime(), err: update.ErrRollbackUnsupported},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			store := newStore()
			store.runtime = testDef.runtime
			req := newRequest(0)
			req.CurrentUpdateID = strPtr("E1")
			req.EmbeddedUpdateID = strPtr("E1")
			_, err := newResolver(store, nil).Resolve(context.Background(), req)
			require.ErrorIs(t, err, testDef.err)
		})
	}
}

func TestAppNotFound(t *testing.T) {
	store := newStore()
	req := newRequest(1)
	req.OrganizationID = "org-2"
	_, err := newResolver(store, nil).Resolve(context.Background(), req)
	require.ErrorIs(t, err, update.ErrAppNotFound)

	store.lookupErr = errors.New("connection refused")
	_, err = newResolver(store, nil).Resolve(context.Background(), newRequest(1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, update.ErrAppNotFound)
}

func TestStatsPublished(t *testing.T) {
	store := newStore()
	store.runtime = activeRuntime(false)
	store.assets = testAssets()
	publisher := &fakePublisher{}
	r := newResolver(store, publisher)

	_, err := r.Resolve(context.Background(), newRequest(1))
	require.NoError(t, err)
	assert.Empty(t, publisher.events, "stats are off for the app")

	store.app.SaveDownloadStatistics = true
	req := newRequest(0)
	req.EmbeddedUpdateID = strPtr("E1")
	_, err = r.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, publisher.events, 1)
	evt := publisher.events[0]
	assert.Equal(t, stats.RequestEventType, evt.Type)
	data, ok := evt.Data.(stats.RequestEvent)
	require.True(t, ok)
	assert.Equal(t, "app-x", data.AppID)
	require.NotNil(t, data.BuildID)
	assert.Equal(t, "build-1", *data.BuildID)
	assert.Equal(t, strPtr("E1"), data.EmbeddedUpdateID)

	// Published even when the request then fails
	store.runtime = rollbackRuntime()
	_, err = r.Resolve(context.Background(), newRequest(0))
	require.ErrorIs(t, err, update.ErrRollbackUnsupported)
	require.Len(t, publisher.events, 2)
	assert.Nil(t, publisher.events[1].Data.(stats.RequestEvent).BuildID)
}

func TestSigningKeyPassedThrough(t *testing.T) {
	store := newStore()
	store.app.SigningKey = strPtr("iv:tag:ct")
	res, err := newResolver(store, nil).Resolve(context.Background(), newRequest(1))
	require.NoError(t, err)
	require.NotNil(t, res.SigningKey)
	assert.Equal(t, "iv:tag:ct", *res.SigningKey)
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	store := newStore()
	r := update.NewResolver(update.ResolverConfig{Store: store, PromRegistry: registry})
	_, err := r.Resolve(context.Background(), newRequest(1))
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), newRequest(0))
	require.Error(t, err)
	expected := `
# HELP update_resolutions_total update requests resolved, by outcome
# TYPE update_resolutions_total counter
update_resolutions_total{outcome="no_update"} 1
update_resolutions_total{outcome="unsupported"} 1
`
	require.NoError(
		t,
		testutil.GatherAndCompare(registry, strings.NewReader(expected), "update_resolutions_total"),
	)
}
