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

package update

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeManifest    = "manifest"
	outcomeNoUpdate    = "no_update"
	outcomeRollback    = "rollback"
	outcomeAppNotFound = "app_not_found"
	outcomeUnsupported = "unsupported"
	outcomeError       = "error"
)

type resolverMetrics struct {
	resolutions *prometheus.CounterVec
	duration    prometheus.Histogram
}

func newResolverMetrics(registry prometheus.Registerer) *resolverMetrics {
	if registry == nil {
		return nil
	}
	m := &resolverMetrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "update_resolutions_total",
				Help: "update requests resolved, by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "update_resolution_duration_seconds",
				Help:    "time spent resolving update requests",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	registry.MustRegister(m.resolutions, m.duration)
	return m
}

func (m *resolverMetrics) observe(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}
