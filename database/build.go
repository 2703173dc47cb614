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
	"time"

	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/database/types"
	"gorm.io/gorm"
)

// GetBuild loads a build by ID
func (d *Database) GetBuild(ctx context.Context, buildID string) (*models.Build, error) {
	return getBuild(d.db(ctx), buildID)
}

func getBuild(db *gorm.DB, buildID string) (*models.Build, error) {
	var build models.Build
	result := db.Where("id = ?", buildID).First(&build)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrBuildNotFound
		}
		return nil, result.Error
	}
	return &build, nil
}

// Builds loads the builds with the given IDs along with their runtimes,
// keyed by ID. Unknown IDs are left out of the result
func (d *Database) Builds(
	ctx context.Context,
	buildIDs []string,
) (map[string]models.Build, error) {
	ret := make(map[string]models.Build, len(buildIDs))
	if len(buildIDs) == 0 {
		return ret, nil
	}
	var builds []models.Build
	result := d.db(ctx).
		Preload("AppRuntime").
		Where("id IN ?", buildIDs).
		Find(&builds)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, build := range builds {
		ret[build.ID] = build
	}
	return ret, nil
}

// RuntimeBuilds returns the builds of a runtime, newest first
func (d *Database) RuntimeBuilds(
	ctx context.Context,
	runtimeID string,
) ([]models.Build, error) {
	var ret []models.Build
	result := d.db(ctx).
		Where("app_runtime_id = ?", runtimeID).
		Order("created_at DESC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// CreateBuild stores a new build along with its assets. Asset positions
// are assigned from their order in the slice
func (d *Database) CreateBuild(ctx context.Context, build *models.Build) error {
	for i := range build.Assets {
		build.Assets[i].Position = i
	}
	return d.db(ctx).Create(build).Error
}

// FinalizeBuild marks a draft build as finalized, making it servable
func (d *Database) FinalizeBuild(ctx context.Context, buildID string) error {
	result := d.db(ctx).
		Model(&models.Build{}).
		Where("id = ?", buildID).
		Update("state", models.BuildStateFinalized)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrBuildNotFound
	}
	return nil
}

// BuildAssets returns the assets of a build in their stored order
func (d *Database) BuildAssets(
	ctx context.Context,
	buildID string,
) ([]models.BuildAsset, error) {
	var ret []models.BuildAsset
	result := d.db(ctx).
		Where("build_id = ?", buildID).
		Order("position, created_at").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetAsset loads a build asset by ID along with its build
func (d *Database) GetAsset(
	ctx context.Context,
	assetID string,
) (*models.BuildAsset, error) {
	var asset models.BuildAsset
	result := d.db(ctx).Preload("Build").Where("id = ?", assetID).First(&asset)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrAssetNotFound
		}
		return nil, result.Error
	}
	return &asset, nil
}

// touchRuntimeBuilds bumps updatedAt on every build of a runtime. Manifest
// IDs derive from updatedAt, so this makes devices see a new update even
// when the same build is served again
func touchRuntimeBuilds(tx *gorm.DB, runtimeID string) error {
	return tx.Model(&models.Build{}).
		Where("app_runtime_id = ?", runtimeID).
		Update("updated_at", time.Now().UTC()).Error
}

// ActivateBuild makes a finalized build the one served for its runtime and
// clears any rollback
func (d *Database) ActivateBuild(ctx context.Context, buildID string) error {
	return d.db(ctx).Transaction(func(tx *gorm.DB) error {
		build, err := getBuild(tx, buildID)
		if err != nil {
			return err
		}
		if build.IsDraft() {
			return types.ErrBuildNotFinalized
		}
		result := tx.Model(&models.AppRuntime{}).
			Where("id = ?", build.AppRuntimeID).
			Updates(map[string]any{
				"active_build_id": build.ID,
				"is_rollback":     false,
			})
		if result.Error != nil {
			return fmt.Errorf("activate build: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return types.ErrRuntimeNotFound
		}
		return touchRuntimeBuilds(tx, build.AppRuntimeID)
	})
}

// RollbackBuild puts the runtime of a build into rollback, which sends
// devices back to their embedded update
func (d *Database) RollbackBuild(ctx context.Context, buildID string) error {
	return d.db(ctx).Transaction(func(tx *gorm.DB) error {
		build, err := getBuild(tx, buildID)
		if err != nil {
			return err
		}
		if err := setRollback(tx, build.AppRuntimeID); err != nil {
			return err
		}
		return touchRuntimeBuilds(tx, build.AppRuntimeID)
	})
}

// RollbackToEmbedded puts a runtime into rollback
func (d *Database) RollbackToEmbedded(ctx context.Context, runtimeID string) error {
	return setRollback(d.db(ctx), runtimeID)
}

func setRollback(db *gorm.DB, runtimeID string) error {
	result := db.Model(&models.AppRuntime{}).
		Where("id = ?", runtimeID).
		Updates(map[string]any{
			"active_build_id": nil,
			"is_rollback":     true,
		})
	if result.Error != nil {
		return fmt.Errorf("rollback runtime: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.ErrRuntimeNotFound
	}
	return nil
}

// DeleteBuild removes a build and its assets. The runtime no longer serves
// the build if it was active. Asset contents are removed from the blob store
// on a best effort basis
func (d *Database) DeleteBuild(ctx context.Context, buildID string) error {
	var assets []models.BuildAsset
	err := d.db(ctx).Transaction(func(tx *gorm.DB) error {
		build, err := getBuild(tx, buildID)
		if err != nil {
			return err
		}
		if err := tx.Where("build_id = ?", build.ID).Find(&assets).Error; err != nil {
			return err
		}
		result := tx.Model(&models.AppRuntime{}).
			Where("id = ? AND active_build_id = ?", build.AppRuntimeID, build.ID).
			Update("active_build_id", nil)
		if result.Error != nil {
			return result.Error
		}
		if err := tx.Where("build_id = ?", build.ID).Delete(&models.BuildAsset{}).Error; err != nil {
			return err
		}
		return tx.Delete(build).Error
	})
	if err != nil {
		return err
	}
	for _, asset := range assets {
		if err := d.blob.Delete(ctx, asset.StorageKey); err != nil &&
			!errors.Is(err, types.ErrBlobKeyNotFound) {
			d.logger.Error(
				"failed to delete asset blob",
				"component", "database",
				"build_id", buildID,
				"key", asset.StorageKey,
				"error", err,
			)
		}
	}
	return nil
}
