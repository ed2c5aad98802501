// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package mcpbridge

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "workflow_agent_bridge"

// metrics are registered on a registry private to one Server, so
// several servers in one process (tests) never collide.
type metrics struct {
	registry *prometheus.Registry

	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	requests       *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Protocol sessions currently open.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Protocol sessions created.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome (ok or an error category).",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency, including the GitHub API round trips.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"tool"}),
	}
	m.registry.MustRegister(
		m.sessionsActive,
		m.sessionsTotal,
		m.requests,
		m.toolCalls,
		m.toolDuration,
	)
	return m
}

func (m *metrics) sessionOpened() {
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

func (m *metrics) sessionClosed() {
	m.sessionsActive.Dec()
}

func (m *metrics) request(method string, code int) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *metrics) toolCall(tool, outcome string, elapsed time.Duration) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// summary totals the counters for the shutdown log line.
type summary struct {
	sessions   int
	requests   int
	toolCalls  int
	toolErrors int
}

func (m *metrics) summarize() summary {
	var result summary
	families, err := m.registry.Gather()
	if err != nil {
		return result
	}
	for _, family := range families {
		switch family.GetName() {
		case metricsNamespace + "_sessions_total":
			for _, metric := range family.GetMetric() {
				result.sessions += int(metric.GetCounter().GetValue())
			}
		case metricsNamespace + "_requests_total":
			for _, metric := range family.GetMetric() {
				result.requests += int(metric.GetCounter().GetValue())
			}
		case metricsNamespace + "_tool_calls_total":
			for _, metric := range family.GetMetric() {
				count := int(metric.GetCounter().GetValue())
				result.toolCalls += count
				for _, label := range metric.GetLabel() {
					if label.GetName() == "outcome" && label.GetValue() != outcomeOK {
						result.toolErrors += count
					}
				}
			}
		}
	}
	return result
}
