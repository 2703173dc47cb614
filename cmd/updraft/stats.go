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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/blinklabs-io/updraft/database"
	"github.com/blinklabs-io/updraft/stats"
	"github.com/spf13/cobra"
)

func statsCommand() *cobra.Command {
	var days int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats <appId>",
		Short: "Show download statistics of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
				report, err := stats.BuildReport(ctx, db, args[0], days, time.Now())
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				return printReport(cmd.OutOrStdout(), report, days)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", stats.DefaultReportDays, "number of days to report on")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.AddCommand(statsPruneCommand(), statsBuildCommand())
	return cmd
}

func statsBuildCommand() *cobra.Command {
	var days int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "build <buildId>",
		Short: "Show download statistics of a build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
				report, err := stats.BuildStats(ctx, db, args[0], days, time.Now())
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				return printBuildReport(cmd.OutOrStdout(), report, days)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", stats.DefaultReportDays, "number of days to report on")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func statsPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete statistics older than the configured retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCmd(cmd)
			if err != nil {
				return err
			}
			if cfg.StatsRetentionDays == 0 {
				return fmt.Errorf("statsRetentionDays is 0, nothing to prune")
			}
			before := time.Now().AddDate(0, 0, -cfg.StatsRetentionDays)
			return withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
				count, err := db.PruneStats(ctx, before)
				if err != nil {
					return err
				}
				fmt.Fprintf(
					cmd.OutOrStdout(),
					"deleted %d entries recorded before %s\n",
					count,
					before.UTC().Format(time.RFC3339),
				)
				return nil
			})
		},
	}
	return cmd
}

func sortedKeys[V any](m map[string]V) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

func printReport(w io.Writer, report *stats.Report, days int) error {
	if days <= 0 {
		days = stats.DefaultReportDays
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Downloads in the last %d days:\t%d\n", days, report.TotalDownloads)
	fmt.Fprintf(
		tw,
		"Update types:\tnative %d\tota %d\tunknown %d\n",
		report.UpdateTypeDistribution.Native,
		report.UpdateTypeDistribution.OTA,
		report.UpdateTypeDistribution.Unknown,
	)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RUNTIME VERSION\tTOTAL\tIOS\tANDROID")
	for _, rv := range sortedKeys(report.ByRuntimeVersion) {
		c := report.ByRuntimeVersion[rv]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", rv, c.Count, c.Platforms.IOS, c.Platforms.Android)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CHANNEL\tTOTAL")
	for _, channel := range sortedKeys(report.ByChannel) {
		fmt.Fprintf(tw, "%s\t%d\n", channel, report.ByChannel[channel])
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PLATFORM\tTOTAL")
	for _, platform := range sortedKeys(report.ByPlatform) {
		fmt.Fprintf(tw, "%s\t%d\n", platform, report.ByPlatform[platform])
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "DATE\tTOTAL")
	for _, date := range sortedKeys(report.Timeline) {
		fmt.Fprintf(tw, "%s\t%d\n", date, report.Timeline[date])
	}
	if len(report.ByBuild) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "BUILD\tRUNTIME\tPLATFORM\tCHANNEL\tTOTAL\tMESSAGE")
		for _, b := range report.ByBuild {
			fmt.Fprintf(
				tw,
				"%s\t%s\t%s\t%s\t%d\t%s\n",
				b.BuildID,
				b.RuntimeVersion,
				b.Platform,
				b.Channel,
				b.Count,
				b.Message,
			)
		}
	}
	return tw.Flush()
}

func printBuildReport(w io.Writer, report *stats.BuildStatsReport, days int) error {
	if days <= 0 {
		days = stats.DefaultReportDays
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	b := report.Build
	fmt.Fprintf(tw, "Build:\t%s\n", b.ID)
	fmt.Fprintf(tw, "Message:\t%s\n", b.Message)
	fmt.Fprintf(tw, "Created:\t%s\n", b.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "Runtime:\t%s %s %s\n", b.RuntimeVersion, b.Platform, b.Channel)
	fmt.Fprintf(tw, "Downloads in the last %d days:\t%d\n", days, report.TotalDownloads)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PLATFORM\tTOTAL")
	for _, platform := range sortedKeys(report.ByPlatform) {
		fmt.Fprintf(tw, "%s\t%d\n", platform, report.ByPlatform[platform])
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CHANNEL\tTOTAL")
	for _, channel := range sortedKeys(report.ByChannel) {
		fmt.Fprintf(tw, "%s\t%d\n", channel, report.ByChannel[channel])
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "DATE\tTOTAL")
	for _, date := range sortedKeys(report.Timeline) {
		fmt.Fprintf(tw, "%s\t%d\n", date, report.Timeline[date])
	}
	return tw.Flush()
}
