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

// Package gormutil holds the gorm setup shared by the metadata plugins
package gormutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/updraft/database/models"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Config returns the gorm config used by all metadata plugins. Timestamps
// are always generated in UTC
func Config(prepareStmt bool) *gorm.Config {
	return &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		PrepareStmt:            prepareStmt,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// app_runtime and build reference each other
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// Setup enables tracing and creates the table schemas
func Setup(db *gorm.DB, logger *slog.Logger) error {
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	for _, model := range models.MigrateModels {
		logger.Debug(
			fmt.Sprintf("creating table: %T", model),
			"component", "database",
		)
		if err := db.AutoMigrate(model); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database handle
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.Close()
}
