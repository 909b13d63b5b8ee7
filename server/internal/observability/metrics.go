package observability

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates request counts and latencies per route.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	routes map[string]*routeMetrics

	// durations keeps the most recent request durations for percentiles.
	durations    []time.Duration
	maxDurations int
}

type routeMetrics struct {
	count         atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
}

// NewMetrics creates a metrics collector keeping up to maxDurations samples.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		routes:       make(map[string]*routeMetrics),
		durations:    make([]time.Duration, 0, maxDurations),
		maxDurations: maxDurations,
	}
}

// Record records one finished request.
func (m *Metrics) Record(route string, duration time.Duration, failed bool) {
	m.requestTotal.Add(1)
	rm := m.route(route)
	rm.count.Add(1)
	rm.totalDuration.Add(duration.Milliseconds())
	if failed {
		m.requestFailed.Add(1)
		rm.errorCount.Add(1)
	}

	m.mu.Lock()
	if len(m.durations) >= m.maxDurations {
		// FIFO
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
	m.mu.Unlock()
}

func (m *Metrics) route(name string) *routeMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.routes[name]
	if !ok {
		rm = &routeMetrics{}
		m.routes[name] = rm
	}
	return rm
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	routes := make(map[string]*RouteSnapshot, len(m.routes))
	for name, rm := range m.routes {
		snap := &RouteSnapshot{
			Count:      rm.count.Load(),
			ErrorCount: rm.errorCount.Load(),
		}
		if snap.Count > 0 {
			snap.AverageMs = rm.totalDuration.Load() / snap.Count
		}
		routes[name] = snap
	}

	sorted := slices.Clone(m.durations)
	slices.Sort(sorted)

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		Routes:        routes,
		P50Ms:         percentile(sorted, 0.50).Milliseconds(),
		P95Ms:         percentile(sorted, 0.95).Milliseconds(),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64                     `json:"requestTotal"`
	RequestFailed int64                     `json:"requestFailed"`
	Routes        map[string]*RouteSnapshot `json:"routes"`
	P50Ms         int64                     `json:"p50Ms"`
	P95Ms         int64                     `json:"p95Ms"`
}

// RouteSnapshot represents metrics for a single route.
type RouteSnapshot struct {
	Count      int64 `json:"count"`
	ErrorCount int64 `json:"errorCount"`
	AverageMs  int64 `json:"averageMs"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
