// internal/utils/metrics.go
package utils

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector holds in-process counters and latency histograms.
type MetricsCollector struct {
	counters   map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of observed values.
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// AddCounter adds delta to the named counter, creating it on first use.
func (m *MetricsCollector) AddCounter(name string, delta int64) {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		counter, exists = m.counters[name]
		if !exists {
			counter = new(int64)
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(counter, delta)
}

// IncrementCounter adds one to the named counter.
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// GetCounterValue returns the current value of a counter, or 0.
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(counter)
}

// RecordHistogram records value in the named histogram.
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// Snapshot returns a copy of every metric.
func (m *MetricsCollector) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, counter := range m.counters {
		counters[name] = atomic.LoadInt64(counter)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{
			"count": h.count,
			"sum":   h.sum,
			"min":   h.min,
			"max":   h.max,
		}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"histograms": histograms,
	}
}

// ChatMetrics records the gate and relay events of the chat pipeline.
type ChatMetrics struct {
	metrics *MetricsCollector
}

// NewChatMetrics wraps a collector. A nil collector gets a fresh one.
func NewChatMetrics(m *MetricsCollector) *ChatMetrics {
	if m == nil {
		m = NewMetricsCollector()
	}
	return &ChatMetrics{metrics: m}
}

// Collector returns the backing collector.
func (cm *ChatMetrics) Collector() *MetricsCollector {
	return cm.metrics
}

// RecordRequest counts an inbound request by status class and records its latency.
func (cm *ChatMetrics) RecordRequest(route string, statusCode int, duration time.Duration) {
	cm.metrics.IncrementCounter("http_requests_total")
	cm.metrics.IncrementCounter("http_responses_" + strconv.Itoa(statusCode/100) + "xx")
	if route != "" {
		cm.metrics.RecordHistogram("http_latency_ms_"+route, duration.Milliseconds())
	}
}

// RecordAdmission counts a request admitted by the access gate.
func (cm *ChatMetrics) RecordAdmission() {
	cm.metrics.IncrementCounter("gate_admitted_total")
}

// RecordRejection counts a gate rejection by failure kind.
func (cm *ChatMetrics) RecordRejection(kind string) {
	cm.metrics.IncrementCounter("gate_rejected_total")
	cm.metrics.IncrementCounter("gate_rejected_" + kind)
}

// RecordRelay counts an upstream call and its latency. status is the upstream
// HTTP status, or 0 when no response was received.
func (cm *ChatMetrics) RecordRelay(status int, err error, duration time.Duration) {
	cm.metrics.IncrementCounter("relay_requests_total")
	cm.metrics.RecordHistogram("relay_latency_ms", duration.Milliseconds())
	if err != nil {
		cm.metrics.IncrementCounter("relay_failures_total")
		return
	}
	if status == http.StatusOK {
		cm.metrics.IncrementCounter("relay_success_total")
	}
}
