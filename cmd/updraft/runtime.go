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
	"fmt"

	"github.com/blinklabs-io/updraft/database"
	"github.com/spf13/cobra"
)

func runtimeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "Manage which build a runtime serves",
	}
	cmd.AddCommand(
		runtimeListCommand(),
		runtimeActionCommand(
			"activate <buildId>",
			"Serve a finalized build to its runtime",
			"activated build %s\n",
			(*database.Database).ActivateBuild,
		),
		runtimeActionCommand(
			"rollback <buildId>",
			"Roll the runtime of a build back to the embedded update",
			"rolled back runtime of build %s\n",
			(*database.Database).RollbackBuild,
		),
		runtimeActionCommand(
			"rollback-to-embedded <runtimeId>",
			"Roll a runtime back to the embedded update",
			"rolled back runtime %s\n",
			(*database.Database).RollbackToEmbedded,
		),
	)
	return cmd
}

func runtimeActionCommand(
	use string,
	short string,
	message string,
	action func(*database.Database, context.Context, string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
				if err := action(db, ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), message, args[0])
				return nil
			})
		},
	}
}

func runtimeListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <appId>",
		Short: "List the runtimes of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
				runtimes, err := db.Runtimes(ctx, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, rt := range runtimes {
					state := "no active build"
					switch {
					case rt.IsRollback:
						state = "rollback to embedded"
					case rt.ActiveBuildID != nil:
						state = "active build " + *rt.ActiveBuildID
					}
					fmt.Fprintf(
						w,
						"%s\t%s\t%s\t%s\t%s\n",
						rt.ID,
						rt.RuntimeVersion,
						rt.Platform,
						rt.Channel,
						state,
					)
				}
				return nil
			})
		},
	}
}
