package fetch

import (
	"sync"

	"github.com/grid-monitor/dashboard/internal/models"
)

// DefaultLogCapacity is how many request records the network log retains.
const DefaultLogCapacity = 100

// RequestSink receives one instrumentation record per fetch call. The
// fetcher treats the sink as an optional observer: its absence changes
// neither behavior nor error semantics.
type RequestSink interface {
	Record(rec models.RequestRecord)
}

// RequestLog is a bounded append-only log of fetch instrumentation
// records. Oldest records are evicted beyond the cap. It backs the
// dashboard's network panel.
type RequestLog struct {
	mu      sync.RWMutex
	records []models.RequestRecord
	cap     int
}

// NewRequestLog creates a log retaining up to capacity records.
// Non-positive capacity falls back to DefaultLogCapacity.
func NewRequestLog(capacity int) *RequestLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &RequestLog{cap: capacity}
}

// Record appends rec, evicting the oldest entry when full.
func (l *RequestLog) Record(rec models.RequestRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	if len(l.records) > l.cap {
		l.records = l.records[len(l.records)-l.cap:]
	}
}

// Records returns a copy of the retained records, oldest first.
func (l *RequestLog) Records() []models.RequestRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.RequestRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of retained records.
func (l *RequestLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
