package syncer

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"comm-terminal/internal/domain/message"
)

// Record is anything a stream can cache: identity for dedup, timestamp for
// ordering.
type Record interface {
	Key() uuid.UUID
	Timestamp() time.Time
}

// Stream keys. One logical stream per key; the broadcast stream is global,
// channels and conversations get their own.
const (
	KeyBroadcast     = "messages"
	KeyChannelPrefix = "channel_messages:"
)

func KeyChannel(channelID uuid.UUID) string {
	return KeyChannelPrefix + channelID.String()
}

func KeyConversation(a, b uuid.UUID) string {
	return "direct_messages:" + message.ConversationKey(a, b)
}

// Stream is the deduplicated, created_at-ordered cache for one logical
// stream. All mutation is serialized behind one mutex (single-writer); reads
// return copies and may run concurrently.
type Stream[T Record] struct {
	key     string
	metrics *MetricsTracker

	mu        sync.RWMutex
	ids       map[uuid.UUID]struct{}
	items     []T
	listeners []func([]T)
}

func NewStream[T Record](key string, metrics *MetricsTracker) *Stream[T] {
	return &Stream[T]{
		key:     key,
		metrics: metrics,
		ids:     make(map[uuid.UUID]struct{}),
	}
}

func (s *Stream[T]) StreamKey() string {
	return s.key
}

// Apply merges one realtime event into the cache. An id already present is
// discarded silently and never re-emitted to observers.
func (s *Stream[T]) Apply(rec T) bool {
	s.mu.Lock()
	if _, dup := s.ids[rec.Key()]; dup {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.Update(func(m *StreamMetrics) { m.DuplicatesDropped++ })
		}
		return false
	}
	s.ids[rec.Key()] = struct{}{}
	s.insertLocked(rec)
	snapshot := s.snapshotLocked()
	listeners := append([]func([]T){}, s.listeners...)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Update(func(m *StreamMetrics) {
			m.EventsApplied++
			m.LastEventAt = time.Now()
		})
	}
	for _, listener := range listeners {
		listener(snapshot)
	}
	return true
}

// MergeSnapshot front-loads a REST history page. Ids already present are
// skipped, so replaying the same page is idempotent. Returns how many
// records were new.
func (s *Stream[T]) MergeSnapshot(recs []T) int {
	s.mu.Lock()
	added := 0
	for _, rec := range recs {
		if _, dup := s.ids[rec.Key()]; dup {
			continue
		}
		s.ids[rec.Key()] = struct{}{}
		s.items = append(s.items, rec)
		added++
	}
	if added > 0 {
		sort.SliceStable(s.items, func(i, j int) bool {
			return s.items[i].Timestamp().Before(s.items[j].Timestamp())
		})
	}
	snapshot := s.snapshotLocked()
	listeners := append([]func([]T){}, s.listeners...)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Update(func(m *StreamMetrics) { m.SnapshotsMerged++ })
	}
	if added > 0 {
		for _, listener := range listeners {
			listener(snapshot)
		}
	}
	return added
}

// Items returns a copy of the cache in created_at ascending order.
func (s *Stream[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Stream[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear empties the cache, keeping listeners registered.
func (s *Stream[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[uuid.UUID]struct{})
	s.items = nil
}

// OnChange registers an observer of the cached list. Observers receive a
// snapshot copy and must not mutate it.
func (s *Stream[T]) OnChange(listener func([]T)) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// insertLocked places rec at its created_at position. Equal timestamps keep
// arrival order.
func (s *Stream[T]) insertLocked(rec T) {
	idx := sort.Search(len(s.items), func(i int) bool {
		return s.items[i].Timestamp().After(rec.Timestamp())
	})
	s.items = append(s.items, rec)
	copy(s.items[idx+1:], s.items[idx:])
	s.items[idx] = rec
}

func (s *Stream[T]) snapshotLocked() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
