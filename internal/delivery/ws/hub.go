// Package ws pushes realtime insert events to connected terminals over
// websockets. Each client subscribes to the stream keys it renders; muted
// channels are filtered out per user before delivery.
package ws

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comm-terminal/internal/logger"
	"comm-terminal/internal/syncer"
	"comm-terminal/internal/transport/realtime"
)

// MutedFunc reports whether the user muted the channel. Wired to the
// channel registry.
type MutedFunc func(userID, channelID uuid.UUID) bool

// Event is the wire envelope pushed to terminals.
type Event struct {
	Stream     string          `json:"stream"`
	Record     json.RawMessage `json:"record"`
	ReceivedAt time.Time       `json:"received_at"`
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan realtime.InsertEvent
	stop       chan struct{}

	clients map[*Client]bool
	muted   MutedFunc
}

func NewHub(muted MutedFunc) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan realtime.InsertEvent, 256),
		stop:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		muted:      muted,
	}
}

// Publish queues an insert event for fan-out. Safe from any goroutine; when
// the hub is backed up the event is dropped rather than blocking the
// transport callback.
func (h *Hub) Publish(ev realtime.InsertEvent) {
	select {
	case h.events <- ev:
	default:
		logger.WithStream(ev.StreamKey).Warn("Dropping websocket fan-out event, hub backlogged")
	}
}

// Run owns the client set. Register, unregister and fan-out all funnel
// through here so no lock is needed.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			logger.Info("Terminal connected",
				zap.String("user_id", client.userID.String()),
				zap.Int("connected", len(h.clients)),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case ev := <-h.events:
			h.fanOut(ev)

		case <-h.stop:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

func (h *Hub) Close() { close(h.stop) }

func (h *Hub) fanOut(ev realtime.InsertEvent) {
	payload, err := json.Marshal(Event{
		Stream:     ev.StreamKey,
		Record:     ev.Record,
		ReceivedAt: ev.ReceivedAt,
	})
	if err != nil {
		logger.WithStream(ev.StreamKey).Error("Failed to encode fan-out event", zap.Error(err))
		return
	}

	channelID, isChannel := channelIDOf(ev.StreamKey)

	for client := range h.clients {
		if !client.subscribed(ev.StreamKey) {
			continue
		}
		if isChannel && h.muted != nil && h.muted(client.userID, channelID) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			// Slow consumer; drop the connection rather than the hub.
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// channelIDOf extracts the channel UUID from a channel stream key.
func channelIDOf(streamKey string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(streamKey, syncer.KeyChannelPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
