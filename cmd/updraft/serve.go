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
	"context"
	"log/slog"
	"os"

	"github.com/blinklabs-io/updraft"
	"github.com/blinklabs-io/updraft/database"
	"github.com/blinklabs-io/updraft/internal/config"
	"github.com/blinklabs-io/updraft/internal/server"
	"github.com/spf13/cobra"
)

func serveRun(_ *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun()
	if err := server.Run(cfg, logger); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the updates server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			serveRun(cmd, args, cfg)
		},
	}
	return cmd
}

// withDatabase opens the configured database for an operator command and
// closes it afterward
func withDatabase(
	cmd *cobra.Command,
	fn func(ctx context.Context, db *database.Database) error,
) error {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	// Keep stdout for command output
	logger := newLogger(os.Stderr)
	db, err := updraft.OpenDatabase(
		updraft.NewConfig(server.Options(cfg, logger)...),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()
	return fn(cmd.Context(), db)
}
