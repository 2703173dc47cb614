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

// Package blobmetrics holds the prometheus metrics shared by blob plugins
package blobmetrics

import "github.com/prometheus/client_golang/prometheus"

const metricNamePrefix = "database_blob_"

// Metrics tracks blob store operations. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	opsTotal   *prometheus.CounterVec
	bytesTotal *prometheus.CounterVec
}

// New registers the blob metrics for a plugin against the registry
func New(registry prometheus.Registerer, pluginName string) *Metrics {
	m := &Metrics{
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        metricNamePrefix + "ops_total",
				Help:        "Total number of blob operations",
				ConstLabels: prometheus.Labels{"plugin": pluginName},
			},
			[]string{"op", "result"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        metricNamePrefix + "bytes_total",
				Help:        "Total bytes read/written for blob operations",
				ConstLabels: prometheus.Labels{"plugin": pluginName},
			},
			[]string{"direction"},
		),
	}
	registry.MustRegister(m.opsTotal, m.bytesTotal)
	return m
}

// Op records the outcome of a single operation
func (m *Metrics) Op(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.opsTotal.WithLabelValues(op, result).Inc()
}

// Read records bytes returned to a caller
func (m *Metrics) Read(n int) {
	if m == nil {
		return
	}
	m.bytesTotal.WithLabelValues("read").Add(float64(n))
}

// Write records bytes stored
func (m *Metrics) Write(n int) {
	if m == nil {
		return
	}
	m.bytesTotal.WithLabelValues("write").Add(float64(n))
}
