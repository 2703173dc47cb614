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
	"fmt"
	"time"

	"gorm.io/gorm"
)

// App is a mobile application that receives updates
type App struct {
	ID             string `gorm:"primaryKey;size:36"`
	OrganizationID string `gorm:"size:36;index;not null"`
	Title          string
	Slug           string `gorm:"size:255;index"`
	// SigningKey is the encrypted PEM private key used to sign manifests
	SigningKey             *string `gorm:"type:text"`
	SaveDownloadStatistics bool    `gorm:"not null;default:false"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
	Runtimes               []AppRuntime `gorm:"foreignKey:AppID"`
}

func (App) TableName() string {
	return "app"
}

func (a *App) BeforeCreate(tx *gorm.DB) error {
	return assignID(&a.ID)(tx)
}

// Platform is a device platform reported by the Expo updates client
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform returns the platform for an exact platform name
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformIOS, PlatformAndroid:
		return Platform(s), nil
	default:
		return "", fmt.Errorf("unsupported platform: %q", s)
	}
}

// AppRuntime groups the builds of an app for one runtime version, platform
// and release channel. At most one build is active at a time.
type AppRuntime struct {
	ID             string   `gorm:"primaryKey;size:36"`
	AppID          string   `gorm:"size:36;not null;uniqueIndex:idx_app_runtime_key"`
	RuntimeVersion string   `gorm:"size:255;not null;uniqueIndex:idx_app_runtime_key"`
	Platform       Platform `gorm:"size:16;not null;uniqueIndex:idx_app_runtime_key"`
	Channel        string   `gorm:"size:255;not null;uniqueIndex:idx_app_runtime_key"`
	ActiveBuildID  *string  `gorm:"size:36"`
	ActiveBuild    *Build   `gorm:"foreignKey:ActiveBuildID"`
	// IsRollback makes devices return to their embedded update. The active
	// build is cleared whenever it is set.
	IsRollback bool `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Builds     []Build `gorm:"foreignKey:AppRuntimeID"`
}

func (AppRuntime) TableName() string {
	return "app_runtime"
}

func (r *AppRuntime) BeforeCreate(tx *gorm.DB) error {
	return assignID(&r.ID)(tx)
}
