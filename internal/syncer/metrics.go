package syncer

import (
	"sync"
	"time"
)

// StreamMetrics tracks sync activity across all streams.
type StreamMetrics struct {
	EventsReceived    int64     `json:"events_received"`
	EventsApplied     int64     `json:"events_applied"`
	DuplicatesDropped int64     `json:"duplicates_dropped"`
	RecordsDropped    int64     `json:"records_dropped"`
	SnapshotsMerged   int64     `json:"snapshots_merged"`
	ActiveStreams     int       `json:"active_streams"`
	LastEventAt       time.Time `json:"last_event_at"`
}

// MetricsTracker is a goroutine-safe wrapper around StreamMetrics.
type MetricsTracker struct {
	mu        sync.RWMutex
	metrics   StreamMetrics
	listeners []func(StreamMetrics)
}

func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{}
}

// Update applies a mutation in a thread-safe way.
func (t *MetricsTracker) Update(fn func(*StreamMetrics)) {
	if fn == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fn(&t.metrics)
	snapshot := t.metrics
	for _, listener := range t.listeners {
		listener(snapshot)
	}
}

// Snapshot returns a copy of the current metrics.
func (t *MetricsTracker) Snapshot() StreamMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// Reset clears accumulated metrics.
func (t *MetricsTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = StreamMetrics{}
}

// OnChange registers a callback invoked whenever metrics are updated.
func (t *MetricsTracker) OnChange(listener func(StreamMetrics)) {
	if listener == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, listener)
}
