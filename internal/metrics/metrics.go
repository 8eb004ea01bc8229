// Package metrics provides in-process counters for the fetch path.
package metrics

import (
	"sync"
	"time"
)

// FetchMetrics counts fetch outcomes across a run.
type FetchMetrics struct {
	mu sync.Mutex

	requests         int64
	succeeded        int64
	failed           int64
	blocked          int64
	stealthFallbacks int64
	lastSuccessTime  time.Time
	startTime        time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests         int64
	Succeeded        int64
	Failed           int64
	Blocked          int64
	StealthFallbacks int64
	LastSuccessTime  time.Time
	StartTime        time.Time
}

// NewFetchMetrics creates a zeroed metrics instance.
func NewFetchMetrics() *FetchMetrics {
	return &FetchMetrics{startTime: time.Now()}
}

// RecordRequest counts one fetch attempt.
func (m *FetchMetrics) RecordRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

// RecordSuccess counts one successful fetch.
func (m *FetchMetrics) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.succeeded++
	m.lastSuccessTime = time.Now()
}

// RecordFailure counts one failed fetch.
func (m *FetchMetrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

// RecordBlocked counts one blocked direct fetch.
func (m *FetchMetrics) RecordBlocked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked++
}

// RecordStealthFallback counts one stealth fallback attempt.
func (m *FetchMetrics) RecordStealthFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stealthFallbacks++
}

// Snapshot returns a consistent copy of all counters.
func (m *FetchMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Requests:         m.requests,
		Succeeded:        m.succeeded,
		Failed:           m.failed,
		Blocked:          m.blocked,
		StealthFallbacks: m.stealthFallbacks,
		LastSuccessTime:  m.lastSuccessTime,
		StartTime:        m.startTime,
	}
}

// Reset zeroes every counter and restarts the clock.
func (m *FetchMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = 0
	m.succeeded = 0
	m.failed = 0
	m.blocked = 0
	m.stealthFallbacks = 0
	m.lastSuccessTime = time.Time{}
	m.startTime = time.Now()
}
