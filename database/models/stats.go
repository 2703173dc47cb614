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

	"gorm.io/gorm"
)

// AppStatsEntry records one manifest request for an app
type AppStatsEntry struct {
	ID               string    `gorm:"primaryKey;size:36"`
	AppID            string    `gorm:"size:36;not null;index:idx_app_stats_app_created"`
	BuildID          *string   `gorm:"size:36"`
	CurrentUpdateID  *string   `gorm:"size:64"`
	EmbeddedUpdateID *string   `gorm:"size:64"`
	RuntimeVersion   string    `gorm:"size:255"`
	Platform         Platform  `gorm:"size:16"`
	Channel          string    `gorm:"size:255"`
	CreatedAt        time.Time `gorm:"index:idx_app_stats_app_created"`
}

func (AppStatsEntry) TableName() string {
	return "app_stats"
}

func (e *AppStatsEntry) BeforeCreate(tx *gorm.DB) error {
	return assignID(&e.ID)(tx)
}
