package utils

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounterConcurrentIncrements(t *testing.T) {
	m := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("hits")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.GetCounterValue("hits"))
	assert.Equal(t, int64(0), m.GetCounterValue("missing"))
}

func TestHistogramTracksBounds(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordHistogram("lat", 30)
	m.RecordHistogram("lat", 10)
	m.RecordHistogram("lat", 20)

	snap := m.Snapshot()
	h := snap["histograms"].(map[string]map[string]int64)["lat"]
	assert.Equal(t, int64(3), h["count"])
	assert.Equal(t, int64(60), h["sum"])
	assert.Equal(t, int64(10), h["min"])
	assert.Equal(t, int64(30), h["max"])
}

func TestChatMetrics(t *testing.T) {
	cm := NewChatMetrics(nil)

	cm.RecordAdmission()
	cm.RecordRejection("rate_limited")
	cm.RecordRelay(http.StatusOK, nil, time.Millisecond)
	cm.RecordRelay(0, errors.New("boom"), time.Millisecond)
	cm.RecordRequest("chat", http.StatusTooManyRequests, time.Millisecond)

	c := cm.Collector()
	assert.Equal(t, int64(1), c.GetCounterValue("gate_admitted_total"))
	assert.Equal(t, int64(1), c.GetCounterValue("gate_rejected_rate_limited"))
	assert.Equal(t, int64(2), c.GetCounterValue("relay_requests_total"))
	assert.Equal(t, int64(1), c.GetCounterValue("relay_success_total"))
	assert.Equal(t, int64(1), c.GetCounterValue("relay_failures_total"))
	assert.Equal(t, int64(1), c.GetCounterValue("http_responses_4xx"))
}
