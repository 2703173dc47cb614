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

package stats

import (
	"context"
	"sort"
	"time"

	"github.com/blinklabs-io/updraft/database/models"
	"github.com/blinklabs-io/updraft/database/types"
)

const DefaultReportDays = 30

type PlatformCounts struct {
	IOS     int `json:"ios"`
	Android int `json:"android"`
}

func (p *PlatformCounts) add(platform models.Platform) {
	switch platform {
	case models.PlatformIOS:
		p.IOS++
	case models.PlatformAndroid:
		p.Android++
	}
}

type RuntimeVersionCount struct {
	Count     int            `json:"count"`
	Platforms PlatformCounts `json:"platforms"`
}

type UpdateTypeDistribution struct {
	Native  int `json:"native"`
	OTA     int `json:"ota"`
	Unknown int `json:"unknown"`
}

type BuildCount struct {
	BuildID        string          `json:"buildId"`
	Message        string          `json:"message"`
	CreatedAt      time.Time       `json:"createdAt"`
	RuntimeVersion string          `json:"runtimeVersion"`
	Platform       models.Platform `json:"platform"`
	Channel        string          `json:"channel"`
	Count          int             `json:"count"`
	Platforms      PlatformCounts  `json:"platforms"`
}

// Report summarizes the update checks of an app over a period
type Report struct {
	TotalDownloads         int                             `json:"totalDownloads"`
	ByRuntimeVersion       map[string]*RuntimeVersionCount `json:"byRuntimeVersion"`
	ByChannel              map[string]int                  `json:"byChannel"`
	ByPlatform             map[string]int                  `json:"byPlatform"`
	UpdateTypeDistribution UpdateTypeDistribution          `json:"updateTypeDistribution"`
	Timeline               map[string]int                  `json:"timeline"`
	ByBuild                []BuildCount                    `json:"byBuild"`
}

// ReportStore reads what a report needs
type ReportStore interface {
	StatsEntries(ctx context.Context, appID string, since time.Time) ([]models.AppStatsEntry, error)
	Builds(ctx context.Context, buildIDs []string) (map[string]models.Build, error)
}

// BuildReport aggregates the entries of an app recorded in the given number
// of days before now
func BuildReport(
	ctx context.Context,
	store ReportStore,
	appID string,
	days int,
	now time.Time,
) (*Report, error) {
	if days <= 0 {
		days = DefaultReportDays
	}
	entries, err := store.StatsEntries(ctx, appID, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	report, buildCounts := Aggregate(entries)
	ids := make([]string, 0, len(buildCounts))
	for id := range buildCounts {
		ids = append(ids, id)
	}
	builds, err := store.Builds(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, count := range buildCounts {
		build, ok := builds[id]
		if !ok {
			// Deleted builds are left out
			continue
		}
		count.BuildID = id
		count.Message = build.Message
		count.CreatedAt = build.CreatedAt
		if build.AppRuntime != nil {
			count.RuntimeVersion = build.AppRuntime.RuntimeVersion
			count.Platform = build.AppRuntime.Platform
			count.Channel = build.AppRuntime.Channel
		}
		report.ByBuild = append(report.ByBuild, *count)
	}
	sort.Slice(report.ByBuild, func(i, j int) bool {
		a, b := report.ByBuild[i], report.ByBuild[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.BuildID < b.BuildID
	})
	return report, nil
}

// BuildDetails identifies the build a BuildStatsReport is about
type BuildDetails struct {
	ID             string          `json:"id"`
	Message        string          `json:"message"`
	CreatedAt      time.Time       `json:"createdAt"`
	RuntimeVersion string          `json:"runtimeVersion"`
	Platform       models.Platform `json:"platform"`
	Channel        string          `json:"channel"`
}

// BuildStatsReport summarizes the update checks that were served one build
type BuildStatsReport struct {
	Build          BuildDetails   `json:"build"`
	TotalDownloads int            `json:"totalDownloads"`
	ByPlatform     map[string]int `json:"byPlatform"`
	ByChannel      map[string]int `json:"byChannel"`
	Timeline       map[string]int `json:"timeline"`
}

// BuildStatsStore reads what a build report needs
type BuildStatsStore interface {
	BuildStatsEntries(ctx context.Context, buildID string, since time.Time) ([]models.AppStatsEntry, error)
	Builds(ctx context.Context, buildIDs []string) (map[string]models.Build, error)
}

// BuildStats aggregates the entries of a single build recorded in the given
// number of days before now. An unknown build is types.ErrBuildNotFound
func BuildStats(
	ctx context.Context,
	store BuildStatsStore,
	buildID string,
	days int,
	now time.Time,
) (*BuildStatsReport, error) {
	if days <= 0 {
		days = DefaultReportDays
	}
	builds, err := store.Builds(ctx, []string{buildID})
	if err != nil {
		return nil, err
	}
	build, ok := builds[buildID]
	if !ok {
		return nil, types.ErrBuildNotFound
	}
	entries, err := store.BuildStatsEntries(ctx, buildID, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	report := &BuildStatsReport{
		Build: BuildDetails{
			ID:        build.ID,
			Message:   build.Message,
			CreatedAt: build.CreatedAt,
		},
		ByPlatform: map[string]int{},
		ByChannel:  map[string]int{},
		Timeline:   map[string]int{},
	}
	if build.AppRuntime != nil {
		report.Build.RuntimeVersion = build.AppRuntime.RuntimeVersion
		report.Build.Platform = build.AppRuntime.Platform
		report.Build.Channel = build.AppRuntime.Channel
	}
	for _, entry := range entries {
		report.TotalDownloads++
		report.ByPlatform[string(entry.Platform)]++
		report.ByChannel[entry.Channel]++
		report.Timeline[entry.CreatedAt.UTC().Format(time.DateOnly)]++
	}
	return report, nil
}

// Aggregate counts entries into a report. Per build counts are returned
// separately, keyed by build ID, without build details
func Aggregate(entries []models.AppStatsEntry) (*Report, map[string]*BuildCount) {
	report := &Report{
		ByRuntimeVersion: map[string]*RuntimeVersionCount{},
		ByChannel:        map[string]int{},
		ByPlatform:       map[string]int{},
		Timeline:         map[string]int{},
		ByBuild:          []BuildCount{},
	}
	buildCounts := map[string]*BuildCount{}
	for _, entry := range entries {
		report.TotalDownloads++

		rv, ok := report.ByRuntimeVersion[entry.RuntimeVersion]
		if !ok {
			rv = &RuntimeVersionCount{}
			report.ByRuntimeVersion[entry.RuntimeVersion] = rv
		}
		rv.Count++
		rv.Platforms.add(entry.Platform)

		report.ByChannel[entry.Channel]++
		report.ByPlatform[string(entry.Platform)]++

		switch updateType(entry) {
		case "native":
			report.UpdateTypeDistribution.Native++
		case "ota":
			report.UpdateTypeDistribution.OTA++
		default:
			report.UpdateTypeDistribution.Unknown++
		}

		report.Timeline[entry.CreatedAt.UTC().Format(time.DateOnly)]++

		if entry.BuildID != nil {
			bc, ok := buildCounts[*entry.BuildID]
			if !ok {
				bc = &BuildCount{}
				buildCounts[*entry.BuildID] = bc
			}
			bc.Count++
			bc.Platforms.add(entry.Platform)
		}
	}
	return report, buildCounts
}

// updateType classifies what a device was running. A device on its
// embedded update is native, one on a different downloaded update is ota
func updateType(entry models.AppStatsEntry) string {
	current := entry.CurrentUpdateID
	embedded := entry.EmbeddedUpdateID
	switch {
	case embedded != nil && *embedded != "" && current != nil && *current == *embedded:
		return "native"
	case current != nil && *current != "" && (embedded == nil || *current != *embedded):
		return "ota"
	default:
		return "unknown"
	}
}
