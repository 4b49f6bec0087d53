// Copyright 2025 ChatBridge
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

package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for session supervision.
// A nil *Metrics disables collection; every observer method is
// nil-safe.
type Metrics struct {
	activeSessions  prometheus.Gauge
	transitions     *prometheus.CounterVec
	disconnects     *prometheus.CounterVec
	reconnects      prometheus.Counter
	credentialSaves *prometheus.CounterVec
}

// NewMetrics creates and registers the session collectors. Labels stay
// low-cardinality: statuses and close reasons, never tenant IDs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatbridge_sessions_active",
			Help: "Number of tenant sessions currently supervised.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbridge_session_transitions_total",
			Help: "Session state transitions by target status.",
		}, []string{"status"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbridge_session_disconnects_total",
			Help: "Transport closes by reason.",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatbridge_session_reconnect_attempts_total",
			Help: "Reconnect attempts across all tenants.",
		}),
		credentialSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbridge_credential_saves_total",
			Help: "Credential bundle persistence attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.activeSessions, m.transitions, m.disconnects, m.reconnects, m.credentialSaves)
	return m
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) sessionEnded() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

func (m *Metrics) transition(status Status) {
	if m != nil {
		m.transitions.WithLabelValues(status.String()).Inc()
	}
}

func (m *Metrics) disconnect(reason string) {
	if m != nil {
		m.disconnects.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) reconnectAttempt() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) credentialSave(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.credentialSaves.WithLabelValues("error").Inc()
		return
	}
	m.credentialSaves.WithLabelValues("ok").Inc()
}
