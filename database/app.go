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

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/database/types"
	"gorm.io/gorm"
)

// LookupApp loads an app by ID and organization along with the runtime
// matching the runtime version, platform and channel. The runtime is nil
// when none matches. The runtime's active build is preloaded when set
func (d *Database) LookupApp(
	ctx context.Context,
	appID string,
	organizationID string,
	runtimeVersion string,
	platform models.Platform,
	channel string,
) (*models.App, *models.AppRuntime, error) {
	var app models.App
	result := d.db(ctx).
		Preload(
			"Runtimes",
			"runtime_version = ? AND platform = ? AND channel = ?",
			runtimeVersion,
			platform,
			channel,
		).
		Preload("Runtimes.ActiveBuild").
		Where("id = ? AND organization_id = ?", appID, organizationID).
		First(&app)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil, types.ErrAppNotFound
		}
		return nil, nil, result.Error
	}
	if len(app.Runtimes) == 0 {
		return &app, nil, nil
	}
	runtime := app.Runtimes[0]
	return &app, &runtime, nil
}

// GetApp loads an app by ID
func (d *Database) GetApp(ctx context.Context, appID string) (*models.App, error) {
	var app models.App
	result := d.db(ctx).Where("id = ?", appID).First(&app)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrAppNotFound
		}
		return nil, result.Error
	}
	return &app, nil
}

// CreateApp stores a new app
func (d *Database) CreateApp(ctx context.Context, app *models.App) error {
	return d.db(ctx).Create(app).Error
}

// SetSigningKey replaces the stored encrypted signing key of an app. A nil
// key removes it
func (d *Database) SetSigningKey(
	ctx context.Context,
	appID string,
	encryptedKey *string,
) error {
	result := d.db(ctx).
		Model(&models.App{}).
		Where("id = ?", appID).
		Update("signing_key", encryptedKey)
	if result.Error != nil {
		return fmt.Errorf("update signing key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.ErrAppNotFound
	}
	return nil
}

// GetRuntime loads an app runtime by ID
func (d *Database) GetRuntime(
	ctx context.Context,
	runtimeID string,
) (*models.AppRuntime, error) {
	var runtime models.AppRuntime
	result := d.db(ctx).Where("id = ?", runtimeID).First(&runtime)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrRuntimeNotFound
		}
		return nil, result.Error
	}
	return &runtime, nil
}

// CreateRuntime stores a new app runtime
func (d *Database) CreateRuntime(
	ctx context.Context,
	runtime *models.AppRuntime,
) error {
	return d.db(ctx).Create(runtime).Error
}

// Runtimes returns all runtimes of an app
func (d *Database) Runtimes(
	ctx context.Context,
	appID string,
) ([]models.AppRuntime, error) {
	var ret []models.AppRuntime
	result := d.db(ctx).
		Where("app_id = ?", appID).
		Order("runtime_version, platform, channel").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// Apps returns all apps, optionally limited to one organization
func (d *Database) Apps(
	ctx context.Context,
	organizationID string,
) ([]models.App, error) {
	var ret []models.App
	query := d.db(ctx).Order("created_at")
	if organizationID != "" {
		query = query.Where("organization_id = ?", organizationID)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
