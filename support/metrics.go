// Copyright 2025 SupportFlow
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

package support

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportflow_chat_requests_total",
			Help: "Total number of chat requests processed",
		},
		[]string{"status"},
	)
	escalationsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportflow_escalations_created_total",
			Help: "Total number of escalations created",
		},
	)
	escalationsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportflow_escalations_resolved_total",
			Help: "Total number of escalations resolved",
		},
		[]string{"decision"},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportflow_llm_calls_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportflow_request_duration_milliseconds",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(chatRequestsTotal)
	prometheus.MustRegister(escalationsCreatedTotal)
	prometheus.MustRegister(escalationsResolvedTotal)
	prometheus.MustRegister(llmCallsTotal)
	prometheus.MustRegister(requestDuration)
}

// Snapshot is the JSON metrics view served on /metrics.
type Snapshot struct {
	TotalChats       int     `json:"total_chats"`
	TotalEscalations int     `json:"total_escalations"`
	ContainmentRate  float64 `json:"bot_containment_estimate"`
}

// Metrics aggregates platform counters from the store.
type Metrics struct {
	db *sql.DB
}

// NewMetrics creates a metrics aggregator over db.
func NewMetrics(db *sql.DB) *Metrics {
	return &Metrics{db: db}
}

// Snapshot computes current totals. Containment is the fraction of
// conversation turns that never received an agent decision; 0 when there
// are no turns.
func (m *Metrics) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot

	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&snap.TotalChats)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	err = m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalations`).Scan(&snap.TotalEscalations)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if snap.TotalChats > 0 {
		var contained int
		err = m.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM conversations WHERE agent_decision IS NULL`).Scan(&contained)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		snap.ContainmentRate = float64(contained) / float64(snap.TotalChats)
	}

	return &snap, nil
}
