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

package event

import "github.com/prometheus/client_golang/prometheus"

type eventMetrics struct {
	eventsTotal    *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
	deliveryErrors *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
}

func newEventMetrics(registry prometheus.Registerer) *eventMetrics {
	m := &eventMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_published_total",
				Help: "events published on the event bus",
			},
			[]string{"type"},
		),
		subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "event_subscribers",
				Help: "current event bus subscribers",
			},
			[]string{"type", "kind"},
		),
		deliveryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_delivery_errors_total",
				Help: "event deliveries that failed and removed the subscriber",
			},
			[]string{"type", "kind"},
		),
		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_dropped_total",
				Help: "events dropped because a queue was full",
			},
			[]string{"type", "reason"},
		),
	}
	registry.MustRegister(
		m.eventsTotal,
		m.subscribers,
		m.deliveryErrors,
		m.droppedTotal,
	)
	return m
}

func (m *eventMetrics) published(eventType EventType) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(eventType)).Inc()
}

func (m *eventMetrics) subscribed(eventType EventType, kind string, delta float64) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(string(eventType), kind).Add(delta)
}

func (m *eventMetrics) deliveryError(eventType EventType, kind string) {
	if m == nil {
		return
	}
	m.deliveryErrors.WithLabelValues(string(eventType), kind).Inc()
}

func (m *eventMetrics) dropped(eventType EventType, reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(string(eventType), reason).Inc()
}
