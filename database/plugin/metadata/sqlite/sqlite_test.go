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

package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/updraft/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoresAreIsolated(t *testing.T) {
	a, err := New("", nil, nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := New("", nil, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.DB().Create(&models.App{OrganizationID: "org"}).Error)
	var count int64
	require.NoError(t, b.DB().Model(&models.App{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, a.DB().Model(&models.App{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSchemaMigrated(t *testing.T) {
	store, err := New("", nil, nil)
	require.NoError(t, err)
	defer store.Close()
	for _, model := range models.MigrateModels {
		assert.True(t, store.DB().Migrator().HasTable(model), "%T", model)
	}
	assert.True(
		t,
		store.DB().Migrator().HasIndex(&models.AppRuntime{}, "idx_app_runtime_key"),
	)
}

func TestDiskBacked(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "meta")
	store, err := New(dir, nil, nil)
	require.NoError(t, err)
	app := &models.App{OrganizationID: "org", Title: "Demo"}
	require.NoError(t, store.DB().Create(app).Error)
	require.NoError(t, store.Close())
	// Close is idempotent
	require.NoError(t, store.Close())
	assert.FileExists(t, filepath.Join(dir, "metadata.sqlite"))

	store, err = New(dir, nil, nil)
	require.NoError(t, err)
	defer store.Close()
	var got models.App
	require.NoError(t, store.DB().First(&got, "id = ?", app.ID).Error)
	assert.Equal(t, "Demo", got.Title)
}

func TestRunVacuumInMemoryNoop(t *testing.T) {
	store, err := New("", nil, nil)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.runVacuum())
}
