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
	"time"

	"github.com/blinklabs-io/updraft/database/models"
)

// AddStatsEntry records a single update check
func (d *Database) AddStatsEntry(
	ctx context.Context,
	entry *models.AppStatsEntry,
) error {
	return d.db(ctx).Create(entry).Error
}

// StatsEntries returns the update checks of an app recorded at or after
// since, oldest first
func (d *Database) StatsEntries(
	ctx context.Context,
	appID string,
	since time.Time,
) ([]models.AppStatsEntry, error) {
	var ret []models.AppStatsEntry
	result := d.db(ctx).
		Where("app_id = ? AND created_at >= ?", appID, since.UTC()).
		Order("created_at").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// BuildStatsEntries returns the update checks that were served a build,
// recorded at or after since, oldest first
func (d *Database) BuildStatsEntries(
	ctx context.Context,
	buildID string,
	since time.Time,
) ([]models.AppStatsEntry, error) {
	var ret []models.AppStatsEntry
	result := d.db(ctx).
		Where("build_id = ? AND created_at >= ?", buildID, since.UTC()).
		Order("created_at").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// PruneStats deletes update checks recorded before the cutoff and returns
// how many were removed
func (d *Database) PruneStats(ctx context.Context, before time.Time) (int64, error) {
	result := d.db(ctx).
		Where("created_at < ?", before.UTC()).
		Delete(&models.AppStatsEntry{})
	return result.RowsAffected, result.Error
}
