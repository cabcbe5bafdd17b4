package app

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/datakit/internal/data"
)

// Metrics counts dispatches and committed changes of a registry.
type Metrics struct {
	dispatchCount   atomic.Uint64
	dispatchErrors  atomic.Uint64
	dispatchTotalNs atomic.Int64
	dispatchMaxNs   atomic.Int64
	commitCount     atomic.Uint64

	mu      sync.Mutex
	commits   map[string]uint64
	startTime time.Time
}

// NewMetrics creates an empty metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		commits:   make(map[string]uint64),
		startTime: time.Now(),
	}
}

// Interceptor returns registry hooks that feed the metrics.
func (m *Metrics) Interceptor() data.Interceptor {
	return data.Interceptor{
		Name:      "metrics",
		Dispatch:  m.middleware,
		Committed: m.committed,
	}
}

func (m *Metrics) middleware(next data.DispatchFunc) data.DispatchFunc {
	return func(ctx context.Context, store string, a data.Action) error {
		start := time.Now()
		err := next(ctx, store, a)
		m.RecordDispatch(time.Since(start), err)
		return err
	}
}

func (m *Metrics) committed(c data.Commit) {
	m.commitCount.Add(1)
	m.mu.Lock()
	m.commits[c.Store]++
	m.mu.Unlock()
}

// RecordDispatch records one plain action dispatch.
func (m *Metrics) RecordDispatch(d time.Duration, err error) {
	ns := d.Nanoseconds()
	m.dispatchCount.Add(1)
	m.dispatchTotalNs.Add(ns)
	if err != nil {
		m.dispatchErrors.Add(1)
	}
	for {
		old := m.dispatchMaxNs.Load()
		if ns <= old || m.dispatchMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Snapshot returns the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	count := m.dispatchCount.Load()
	var avg int64
	if count > 0 {
		avg = m.dispatchTotalNs.Load() / int64(count)
	}

	m.mu.Lock()
	commits := maps.Clone(m.commits)
	uptime := time.Since(m.startTime)
	m.mu.Unlock()

	return MetricsSnapshot{
		Uptime:         uptime,
		Dispatches:     count,
		DispatchErrors: m.dispatchErrors.Load(),
		AvgDispatchNs:  avg,
		MaxDispatchNs:  m.dispatchMaxNs.Load(),
		Commits:        m.commitCount.Load(),
		StoreCommits:   commits,
	}
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.dispatchCount.Store(0)
	m.dispatchErrors.Store(0)
	m.dispatchTotalNs.Store(0)
	m.dispatchMaxNs.Store(0)
	m.commitCount.Store(0)
	m.mu.Lock()
	m.commits = make(map[string]uint64)
	m.startTime = time.Now()
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime         time.Duration     `json:"uptime"`
	Dispatches     uint64            `json:"dispatches"`
	DispatchErrors uint64            `json:"dispatchErrors"`
	AvgDispatchNs  int64             `json:"avgDispatchNs"`
	MaxDispatchNs  int64             `json:"maxDispatchNs"`
	Commits        uint64            `json:"commits"`
	StoreCommits   map[string]uint64 `json:"storeCommits"`
}

// NoopRate returns the share of dispatches that did not change any state.
func (s MetricsSnapshot) NoopRate() float64 {
	if s.Dispatches == 0 || s.Commits >= s.Dispatches {
		return 0
	}
	return float64(s.Dispatches-s.Commits) / float64(s.Dispatches)
}
