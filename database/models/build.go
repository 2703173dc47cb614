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

package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BuildState is the lifecycle state of a build
type BuildState string

const (
	BuildStateDraft     BuildState = "draft"
	BuildStateFinalized BuildState = "finalized"
)

// Build is an uploaded JS bundle with its assets
type Build struct {
	ID           string      `gorm:"primaryKey;size:36"`
	AppRuntimeID string      `gorm:"size:36;index;not null"`
	AppRuntime   *AppRuntime `gorm:"foreignKey:AppRuntimeID"`
	State        BuildState  `gorm:"size:16;not null;default:draft"`
	Message      string      `gorm:"type:text"`
	// Metadata is opaque to the server and is never interpreted
	Metadata  datatypes.JSONMap
	CreatedAt time.Time
	UpdatedAt time.Time
	Assets    []BuildAsset `gorm:"foreignKey:BuildID"`
}

func (Build) TableName() string {
	return "build"
}

func (b *Build) BeforeCreate(tx *gorm.DB) error {
	return assignID(&b.ID)(tx)
}

// IsDraft reports whether the build may not be served. Anything other than
// a finalized build counts as a draft.
func (b *Build) IsDraft() bool {
	return b.State != BuildStateFinalized
}

// AssetType distinguishes the launch bundle from its supporting assets
type AssetType string

const (
	AssetTypeBundle AssetType = "BUNDLE"
	AssetTypeAsset  AssetType = "ASSET"
)

// BuildAsset is a single file belonging to a build
type BuildAsset struct {
	ID      string    `gorm:"primaryKey;size:36"`
	BuildID string    `gorm:"size:36;index;not null"`
	Build   *Build    `gorm:"foreignKey:BuildID"`
	Type    AssetType `gorm:"size:16;not null"`
	// Hash is the hex SHA-256 of the file contents
	Hash string `gorm:"size:64;not null"`
	// MD5Key is the hex MD5 of the file contents
	MD5Key       string `gorm:"column:md5_key;size:32;not null"`
	ContentType  string `gorm:"size:255"`
	Extension    string `gorm:"size:32"`
	OriginalName string
	// StorageKey is the blob store key of the file contents
	StorageKey string `gorm:"not null"`
	Size       int64
	// Position is the order of the asset within its build
	Position  int `gorm:"not null;default:0"`
	CreatedAt time.Time
}

func (BuildAsset) TableName() string {
	return "build_asset"
}

func (a *BuildAsset) BeforeCreate(tx *gorm.DB) error {
	return assignID(&a.ID)(tx)
}
