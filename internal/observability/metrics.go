package observability

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64

	wsConnections atomic.Int64
	broadcasts    atomic.Int64
	deliveries    atomic.Int64
	drops         atomic.Int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests          map[string]int64 `json:"requests"`
	Errors            map[string]int64 `json:"errors"`
	ActiveConnections int64            `json:"active_connections"`
	Broadcasts        int64            `json:"broadcasts"`
	Deliveries        int64            `json:"deliveries"`
	Drops             int64            `json:"drops"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, _ time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
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

// ConnectionOpened tracks a live websocket.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.wsConnections.Add(1)
	}
}

// ConnectionClosed tracks a websocket going away.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.wsConnections.Add(-1)
	}
}

// RecordBroadcast counts one fan-out and its per-member outcome.
func (m *Metrics) RecordBroadcast(delivered, dropped int) {
	if m == nil {
		return
	}
	m.broadcasts.Add(1)
	m.deliveries.Add(int64(delivered))
	m.drops.Add(int64(dropped))
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Requests: map[string]int64{}, Errors: map[string]int64{}}
	}
	m.mu.Lock()
	requests := make(map[string]int64, len(m.requestCount))
	for k, v := range m.requestCount {
		requests[k] = v
	}
	errs := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errs[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		Requests:          requests,
		Errors:            errs,
		ActiveConnections: m.wsConnections.Load(),
		Broadcasts:        m.broadcasts.Load(),
		Deliveries:        m.deliveries.Load(),
		Drops:             m.drops.Load(),
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
