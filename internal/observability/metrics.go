package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for inbound updates and
// the ops API.
type Metrics struct {
	mu           sync.Mutex
	updateCount  map[string]int64
	requestCount map[string]int64
	errorCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		updateCount:  make(map[string]int64),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordUpdate counts one handled platform update by kind and outcome.
func (m *Metrics) RecordUpdate(kind string, ok bool) {
	if m == nil {
		return
	}
	key := kind + "|" + strconv.FormatBool(ok)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCount[key]++
}

// RecordRequest increments counters for ops API requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Snapshot copies current counters for the metrics endpoint.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]map[string]int64{
		"updates":  copyCounts(m.updateCount),
		"requests": copyCounts(m.requestCount),
		"errors":   copyCounts(m.errorCount),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
