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
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MigrateModels contains a list of model objects that should have DB migrations applied
var MigrateModels = []any{
	&App{},
	&AppRuntime{},
	&Build{},
	&BuildAsset{},
	&AppStatsEntry{},
}

// newID returns a random UUIDv4 string for use as a primary key
func newID() string {
	return uuid.NewString()
}

// assignID fills an empty string primary key before insert
func assignID(id *string) func(*gorm.DB) error {
	return func(*gorm.DB) error {
		if *id == "" {
			*id = newID()
		}
		return nil
	}
}
