package syncer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"comm-terminal/internal/logger"
	"comm-terminal/internal/transport/realtime"
)

// pushTransport is the slice of the realtime subscriber the coordinator
// needs; satisfied by *realtime.Subscriber.
type pushTransport interface {
	Subscribe(streamKey string, handler realtime.Handler) error
	Unsubscribe(streamKey string)
	OnReconnect(fn func())
}

type activeStream struct {
	resync func()
}

// Coordinator owns the lifecycle of every realtime subscription. At most one
// subscription exists per logical stream key; starting a key that is already
// active supersedes the prior subscription. No other component may open a
// network stream.
type Coordinator struct {
	rt                pushTransport
	metrics           *MetricsTracker
	resyncOnReconnect bool

	mu     sync.Mutex
	active map[string]*activeStream
	taps   []func(realtime.InsertEvent)
}

func NewCoordinator(rt pushTransport, resyncOnReconnect bool) *Coordinator {
	c := &Coordinator{
		rt:                rt,
		metrics:           NewMetricsTracker(),
		resyncOnReconnect: resyncOnReconnect,
		active:            make(map[string]*activeStream),
	}
	rt.OnReconnect(c.handleReconnect)
	return c
}

func (c *Coordinator) Metrics() *MetricsTracker {
	return c.metrics
}

// OnEvent registers a tap invoked for every insert event on every active
// stream, after the stream's own handler. Used to fan events out to
// connected terminals.
func (c *Coordinator) OnEvent(fn func(realtime.InsertEvent)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taps = append(c.taps, fn)
}

// Start opens the realtime stream for key. handler receives each insert
// event; resync (optional) re-fetches a REST snapshot and is invoked after
// transport reconnects, since events missed while disconnected are not
// replayed.
func (c *Coordinator) Start(key string, handler realtime.Handler, resync func()) error {
	counted := func(ev realtime.InsertEvent) {
		c.metrics.Update(func(m *StreamMetrics) {
			m.EventsReceived++
			m.LastEventAt = time.Now()
		})
		handler(ev)

		c.mu.Lock()
		taps := append([]func(realtime.InsertEvent){}, c.taps...)
		c.mu.Unlock()
		for _, tap := range taps {
			tap(ev)
		}
	}

	// Check-and-subscribe is one critical section: two concurrent Starts for
	// the same key must serialize so the loser supersedes instead of hitting
	// the transport's duplicate-subscription error. Event delivery takes c.mu
	// from its own goroutine, never from inside Subscribe, so holding the
	// lock across the transport calls cannot deadlock.
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.active[key]; exists {
		// Supersede, never stack.
		c.rt.Unsubscribe(key)
		delete(c.active, key)
		logger.WithStream(key).Info("Superseding existing stream subscription")
	}

	if err := c.rt.Subscribe(key, counted); err != nil {
		logger.WithStream(key).Error("Failed to open stream", zap.Error(err))
		return err
	}

	c.active[key] = &activeStream{resync: resync}
	count := len(c.active)
	c.metrics.Update(func(m *StreamMetrics) { m.ActiveStreams = count })
	return nil
}

// Stop tears the stream down. Safe to call repeatedly and concurrently with
// in-flight event delivery.
func (c *Coordinator) Stop(key string) {
	c.mu.Lock()
	_, exists := c.active[key]
	if exists {
		delete(c.active, key)
	}
	count := len(c.active)
	c.mu.Unlock()

	if !exists {
		return
	}
	c.rt.Unsubscribe(key)
	c.metrics.Update(func(m *StreamMetrics) { m.ActiveStreams = count })
}

// StopAll tears down every active stream, for shutdown.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.active))
	for key := range c.active {
		keys = append(keys, key)
	}
	c.active = make(map[string]*activeStream)
	c.mu.Unlock()

	for _, key := range keys {
		c.rt.Unsubscribe(key)
	}
	c.metrics.Update(func(m *StreamMetrics) { m.ActiveStreams = 0 })
}

// Active reports whether a stream is currently subscribed.
func (c *Coordinator) Active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.active[key]
	return exists
}

// ActiveKeys lists the currently subscribed stream keys.
func (c *Coordinator) ActiveKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.active))
	for key := range c.active {
		keys = append(keys, key)
	}
	return keys
}

// handleReconnect closes the gap window after a transport drop: each stream
// re-fetches a fresh REST snapshot, and dedup makes the merge idempotent.
func (c *Coordinator) handleReconnect() {
	if !c.resyncOnReconnect {
		return
	}

	c.mu.Lock()
	resyncs := make([]func(), 0, len(c.active))
	for key, stream := range c.active {
		if stream.resync != nil {
			resyncs = append(resyncs, stream.resync)
		}
		logger.WithStream(key).Info("Resyncing after reconnect")
	}
	c.mu.Unlock()

	for _, resync := range resyncs {
		resync()
	}
}
