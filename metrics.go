// metrics.go: pluggable metrics collection for verification and installation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MetricsCollector is the pluggable metrics interface. Embedders adapt their
// metrics system (Prometheus, OpenTelemetry, statsd) behind it; the library
// itself never depends on a concrete backend.
//
// Counters emitted by the library:
//   - goweave_verifications_total
//   - goweave_verification_mismatches_total
//   - goweave_modules_installed_total
//   - goweave_modules_rejected_total
//   - goweave_helpers_deployed_total
type MetricsCollector interface {
	// IncrementCounter adds value to a named counter.
	IncrementCounter(name string, labels map[string]string, value int64)

	// SetGauge records the current value of a named gauge.
	SetGauge(name string, labels map[string]string, value float64)

	// GetMetrics returns a snapshot of all recorded metrics.
	GetMetrics() map[string]any
}

// NoOpMetricsCollector discards all metrics. It is the default when no
// collector is configured.
type NoOpMetricsCollector struct{}

// NewNoOpMetricsCollector creates a metrics collector that discards input.
func NewNoOpMetricsCollector() *NoOpMetricsCollector {
	return &NoOpMetricsCollector{}
}

// IncrementCounter implements MetricsCollector (no-op)
func (n *NoOpMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
}

// SetGauge implements MetricsCollector (no-op)
func (n *NoOpMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {}

// GetMetrics implements MetricsCollector (no-op)
func (n *NoOpMetricsCollector) GetMetrics() map[string]any {
	return map[string]any{}
}

// InMemoryMetricsCollector aggregates metrics in memory. It backs tests and
// small deployments that only want a diagnostic snapshot.
type InMemoryMetricsCollector struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
}

// NewInMemoryMetricsCollector creates an empty in-memory collector.
func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
	}
}

// IncrementCounter implements MetricsCollector.
func (c *InMemoryMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	key := metricKey(name, labels)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key] += value
}

// SetGauge implements MetricsCollector.
func (c *InMemoryMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	key := metricKey(name, labels)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[key] = value
}

// GetMetrics implements MetricsCollector.
func (c *InMemoryMetricsCollector) GetMetrics() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]any, len(c.counters)+len(c.gauges))
	for k, v := range c.counters {
		snapshot[k] = v
	}
	for k, v := range c.gauges {
		snapshot[k] = v
	}
	return snapshot
}

// CounterValue returns the aggregate value of a counter across all label
// sets that share the metric name.
func (c *InMemoryMetricsCollector) CounterValue(name string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for k, v := range c.counters {
		if k == name || strings.HasPrefix(k, name+"{") {
			total += v
		}
	}
	return total
}

// metricKey renders name{k=v,...} with sorted label keys.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}
