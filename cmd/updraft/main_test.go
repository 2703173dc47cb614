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

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/updraft"
	"github.com/blinklabs-io/updraft/database"
	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/database/types"
	"github.com/blinklabs-io/updraft/keystore"
	"github.com/blinklabs-io/updraft/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPlugins(t *testing.T) {
	shouldExit, output := listPlugins("list", "sqlite")
	assert.True(t, shouldExit)
	assert.Contains(t, output, "Available blob plugins:")
	assert.Contains(t, output, "  badger: ")
	assert.NotContains(t, output, "metadata plugins")

	shouldExit, _ = listPlugins("badger", "sqlite")
	assert.False(t, shouldExit)

	all := listAllPlugins()
	assert.Contains(t, all, "  sqlite: ")
	assert.Contains(t, all, "  s3: ")
}

func TestPrintReport(t *testing.T) {
	report, _ := stats.Aggregate([]models.AppStatsEntry{
		{
			RuntimeVersion: "1.0.0",
			Platform:       models.PlatformIOS,
			Channel:        "production",
			CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			RuntimeVersion: "1.0.0",
			Platform:       models.PlatformAndroid,
			Channel:        "staging",
			CreatedAt:      time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC),
		},
	})
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, report, 0))
	out := buf.String()
	assert.Contains(t, out, "Downloads in the last 30 days:  2")
	assert.Regexp(t, `(?m)^1\.0\.0\s+2\s+1\s+1$`, out)
	assert.Regexp(t, `(?m)^2025-03-01\s+1$`, out)
	assert.Regexp(t, `(?m)^staging\s+1$`, out)
	assert.Regexp(t, `(?m)^Update types:\s+native 0\s+ota 0\s+unknown 2$`, out)
}

type cliFixture struct {
	dir        string
	configFile string
	appID      string
	runtimeID  string
	buildID    string
}

func newCliFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	configFile := filepath.Join(dir, "updraft.yaml")
	require.NoError(t, os.WriteFile(
		configFile,
		[]byte("databasePath: "+filepath.Join(dir, "data")+"\nsigning:\n  secret: test-secret\n"),
		0o600,
	))
	f := &cliFixture{dir: dir, configFile: configFile}
	f.withDatabase(t, func(ctx context.Context, db *database.Database) {
		app := &models.App{OrganizationID: "org-1", Title: "Demo", Slug: "demo"}
		require.NoError(t, db.CreateApp(ctx, app))
		runtime := &models.AppRuntime{
			AppID:          app.ID,
			RuntimeVersion: "1.0.0",
			Platform:       models.PlatformIOS,
			Channel:        "production",
		}
		require.NoError(t, db.CreateRuntime(ctx, runtime))
		build := &models.Build{
			AppRuntimeID: runtime.ID,
			State:        models.BuildStateFinalized,
			Assets: []models.BuildAsset{
				{Type: models.AssetTypeBundle, Hash: "aa", MD5Key: "bb", StorageKey: "demo/bundle.js"},
			},
		}
		require.NoError(t, db.CreateBuild(ctx, build))
		f.appID = app.ID
		f.runtimeID = runtime.ID
		f.buildID = build.ID
	})
	return f
}

func (f *cliFixture) withDatabase(t *testing.T, fn func(ctx context.Context, db *database.Database)) {
	t.Helper()
	db, err := updraft.OpenDatabase(
		updraft.NewConfig(updraft.WithDatabasePath(filepath.Join(f.dir, "data"))),
	)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()
	fn(context.Background(), db)
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd, err := newRootCommand()
	require.NoError(t, err)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", f.configFile}, args...))
	err = rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRuntimeCommands(t *testing.T) {
	f := newCliFixture(t)

	out, err := f.run(t, "runtime", "activate", f.buildID)
	require.NoError(t, err)
	assert.Equal(t, "activated build "+f.buildID+"\n", out)
	f.withDatabase(t, func(ctx context.Context, db *database.Database) {
		rt, err := db.GetRuntime(ctx, f.runtimeID)
		require.NoError(t, err)
		require.NotNil(t, rt.ActiveBuildID)
		assert.Equal(t, f.buildID, *rt.ActiveBuildID)
	})

	out, err = f.run(t, "runtime", "list", f.appID)
	require.NoError(t, err)
	assert.Contains(t, out, "active build "+f.buildID)

	_, err = f.run(t, "runtime", "rollback-to-embedded", f.runtimeID)
	require.NoError(t, err)
	f.withDatabase(t, func(ctx context.Context, db *database.Database) {
		rt, err := db.GetRuntime(ctx, f.runtimeID)
		require.NoError(t, err)
		assert.True(t, rt.IsRollback)
		assert.Nil(t, rt.ActiveBuildID)
	})

	_, err = f.run(t, "runtime", "rollback-to-embedded", "missing")
	require.Error(t, err)

	out, err = f.run(t, "build", "delete", f.buildID)
	require.NoError(t, err)
	assert.Equal(t, "deleted build "+f.buildID+"\n", out)
}

func TestStatsBuildCommand(t *testing.T) {
	f := newCliFixture(t)
	recent := time.Now().UTC().Add(-time.Hour)
	f.withDatabase(t, func(ctx context.Context, db *database.Database) {
		for _, entry := range []models.AppStatsEntry{
			{AppID: f.appID, BuildID: &f.buildID, RuntimeVersion: "1.0.0", Platform: models.PlatformIOS, Channel: "production", CreatedAt: recent},
			{AppID: f.appID, BuildID: &f.buildID, RuntimeVersion: "1.0.0", Platform: models.PlatformAndroid, Channel: "production", CreatedAt: recent},
			// Outside the reporting window
			{AppID: f.appID, BuildID: &f.buildID, RuntimeVersion: "1.0.0", Platform: models.PlatformIOS, Channel: "production", CreatedAt: recent.AddDate(0, 0, -10)},
			// Another build
			{AppID: f.appID, RuntimeVersion: "1.0.0", Platform: models.PlatformIOS, Channel: "production", CreatedAt: recent},
		} {
			require.NoError(t, db.AddStatsEntry(ctx, &entry))
		}
	})

	out, err := f.run(t, "stats", "build", f.buildID, "--days", "7", "--json")
	require.NoError(t, err)
	var report stats.BuildStatsReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, f.buildID, report.Build.ID)
	assert.Equal(t, "1.0.0", report.Build.RuntimeVersion)
	assert.Equal(t, models.PlatformIOS, report.Build.Platform)
	assert.Equal(t, 2, report.TotalDownloads)
	assert.Equal(t, map[string]int{"ios": 1, "android": 1}, report.ByPlatform)
	assert.Equal(t, map[string]int{"production": 2}, report.ByChannel)
	assert.Equal(t, map[string]int{recent.Format(time.DateOnly): 2}, report.Timeline)

	out, err = f.run(t, "stats", "build", f.buildID)
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^Build:\s+`+f.buildID+`$`, out)
	assert.Contains(t, out, "Downloads in the last 30 days:  3")
	assert.Regexp(t, `(?m)^android\s+1$`, out)

	_, err = f.run(t, "stats", "build", "missing")
	require.ErrorIs(t, err, types.ErrBuildNotFound)
}

func TestSetSigningKeyCommand(t *testing.T) {
	f := newCliFixture(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	keyFile := filepath.Join(f.dir, "key.pem")
	require.NoError(t, os.WriteFile(keyFile, pemBytes, 0o600))

	out, err := f.run(t, "app", "set-signing-key", f.appID, "--key-file", keyFile)
	require.NoError(t, err)
	assert.Equal(t, "stored signing key of app "+f.appID+"\n", out)
	f.withDatabase(t, func(ctx context.Context, db *database.Database) {
		app, err := db.GetApp(ctx, f.appID)
		require.NoError(t, err)
		require.NotNil(t, app.SigningKey)
		decrypted, err := keystore.NewAesGcm("test-secret").Decrypt(*app.SigningKey)
		require.NoError(t, err)
		assert.Equal(t, pemBytes, decrypted)
	})

	_, err = f.run(t, "app", "set-signing-key", f.appID)
	require.Error(t, err)

	_, err = f.run(t, "app", "set-signing-key", f.appID, "--remove")
	require.NoError(t, err)
	f.withDatabase(t, func(ctx context.Context, db *database.Database) {
		app, err := db.GetApp(ctx, f.appID)
		require.NoError(t, err)
		assert.Nil(t, app.SigningKey)
	})
}
