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

package badger_test

import (
	"context"
	"testing"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin/blob/badger"
	"github.com/blinklabs-io/updraft/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...badger.BlobStoreBadgerOptionFunc) *badger.BlobStoreBadger {
	t.Helper()
	store, err := badger.New(opts...)
	require.NoError(t, err)
	require.NoError(t, store.Start())
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestPutGetDelete(t *testing.T) {
	store := newStore(t, badger.WithPromRegistry(prometheus.NewRegistry()))
	ctx := context.Background()
	key := types.AssetBlobKey("app", "build", "bundles/ios.js")

	require.NoError(t, store.Put(ctx, key, []byte("bundle"), "application/javascript"))
	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("bundle"), data)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}

func TestURLUnsupported(t *testing.T) {
	store := newStore(t)
	_, err := store.URL(context.Background(), "app/build/file", time.Hour)
	require.ErrorIs(t, err, types.ErrBlobURLUnsupported)
}

func TestInvalidKey(t *testing.T) {
	store := newStore(t)
	err := store.Put(context.Background(), "../escape", []byte("x"), "")
	require.ErrorIs(t, err, types.ErrInvalidBlobKey)
}

func TestDiskBacked(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := badger.New(badger.WithDataDir(dir), badger.WithGc(true))
	require.NoError(t, err)
	require.NoError(t, store.Start())
	require.NoError(t, store.Put(ctx, "a/b/c", []byte("persisted"), ""))
	require.NoError(t, store.Close())

	// Reopen and read back
	store, err = badger.New(badger.WithDataDir(dir), badger.WithGc(false))
	require.NoError(t, err)
	require.NoError(t, store.Start())
	defer store.Close()
	data, err := store.Get(ctx, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), data)
}

func TestNotStarted(t *testing.T) {
	store, err := badger.New()
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "a")
	require.ErrorIs(t, err, types.ErrBlobStoreUnavailable)
}
