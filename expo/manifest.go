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

package expo

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/updraft/database/models"
)

const (
	DirectiveNoUpdateAvailable  = "noUpdateAvailable"
	DirectiveRollBackToEmbedded = "rollBackToEmbedded"

	defaultBundleExtension = ".bundle"
	isoTimeFormat          = "2006-01-02T15:04:05.000Z"
)

// Asset describes a single file of an update. Field order is the wire order
type Asset struct {
	Hash          string `json:"hash"`
	Key           string `json:"key"`
	FileExtension string `json:"fileExtension"`
	ContentType   string `json:"contentType"`
	URL           string `json:"url"`
}

// Manifest is the update description sent to devices
type Manifest struct {
	ID             string            `json:"id"`
	CreatedAt      string            `json:"createdAt"`
	RuntimeVersion string            `json:"runtimeVersion"`
	LaunchAsset    Asset             `json:"launchAsset"`
	Assets         []Asset           `json:"assets"`
	Metadata       map[string]string `json:"metadata"`
	Extra          map[string]any    `json:"extra"`
}

type DirectiveParameters struct {
	CommitTime string `json:"commitTime"`
}

// Directive tells a device to do something other than apply a new update
type Directive struct {
	Type       string               `json:"type"`
	Parameters *DirectiveParameters `json:"parameters,omitempty"`
}

func NoUpdateAvailable() *Directive {
	return &Directive{Type: DirectiveNoUpdateAvailable}
}

func RollBackToEmbedded(commitTime time.Time) *Directive {
	return &Directive{
		Type: DirectiveRollBackToEmbedded,
		Parameters: &DirectiveParameters{
			CommitTime: FormatTime(commitTime),
		},
	}
}

// FormatTime renders a time as UTC ISO-8601 with milliseconds
func FormatTime(t time.Time) string {
	return t.UTC().Format(isoTimeFormat)
}

// Marshal encodes a payload as compact JSON without HTML escaping, so the
// bytes match what other Expo servers produce for the same values
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ManifestID derives the update ID of a build. It changes whenever the
// build's updatedAt changes
func ManifestID(buildID string, runtimeVersion string, updatedAt time.Time) string {
	data, _ := Marshal(struct {
		ID             string `json:"id"`
		RuntimeVersion string `json:"runtimeVersion"`
		UpdatedAt      string `json:"updatedAt"`
	}{
		ID:             buildID,
		RuntimeVersion: runtimeVersion,
		UpdatedAt:      FormatTime(updatedAt),
	})
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])
	return strings.Join(
		[]string{h[0:8], h[8:12], h[12:16], h[16:20], h[20:32]},
		"-",
	)
}

// BuildManifest assembles the manifest for a build from its assets, which
// must be in stored order
func BuildManifest(
	build *models.Build,
	runtimeVersion string,
	assets []models.BuildAsset,
	baseURL string,
) (*Manifest, error) {
	ret := &Manifest{
		ID:             ManifestID(build.ID, runtimeVersion, build.UpdatedAt),
		CreatedAt:      FormatTime(build.UpdatedAt),
		RuntimeVersion: runtimeVersion,
		Assets:         []Asset{},
		Metadata:       map[string]string{},
		Extra:          map[string]any{},
	}
	foundBundle := false
	for i := range assets {
		asset := &assets[i]
		switch asset.Type {
		case models.AssetTypeBundle:
			if foundBundle {
				continue
			}
			launch, err := manifestAsset(asset, defaultBundleExtension, baseURL)
			if err != nil {
				return nil, err
			}
			ret.LaunchAsset = launch
			foundBundle = true
		case models.AssetTypeAsset:
			a, err := manifestAsset(asset, "", baseURL)
			if err != nil {
				return nil, err
			}
			ret.Assets = append(ret.Assets, a)
		}
	}
	if !foundBundle {
		return nil, fmt.Errorf("%w: %s", ErrNoBundle, build.ID)
	}
	return ret, nil
}

func manifestAsset(
	asset *models.BuildAsset,
	defaultExtension string,
	baseURL string,
) (Asset, error) {
	hash, err := AssetHash(asset.Hash)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %s: %w", asset.ID, err)
	}
	ext := asset.Extension
	if ext == "" {
		ext = defaultExtension
	}
	return Asset{
		Hash:          hash,
		Key:           asset.MD5Key,
		FileExtension: ext,
		ContentType:   asset.ContentType,
		URL:           AssetURL(baseURL, asset.ID),
	}, nil
}

// AssetHash converts a hex SHA-256 digest into the unpadded base64url form
// used in manifests
func AssetHash(hexHash string) (string, error) {
	raw, err := hex.DecodeString(hexHash)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAssetHash, err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// AssetURL is the download location of an asset
func AssetURL(baseURL string, assetID string) string {
	return strings.TrimSuffix(baseURL, "/") + "/expo/assets/" + assetID
}
