package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"comm-terminal/internal/syncer"
	"comm-terminal/internal/transport/realtime"
)

func newTestClient(userID uuid.UUID, streams ...string) *Client {
	subs := map[string]bool{}
	for _, s := range streams {
		subs[s] = true
	}
	return &Client{
		send:   make(chan []byte, 8),
		userID: userID,
		subs:   subs,
	}
}

func recvEvent(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case payload := <-c.send:
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		return &ev
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func TestFanOutRespectsSubscriptions(t *testing.T) {
	hub := NewHub(nil)
	subscribed := newTestClient(uuid.New(), syncer.KeyBroadcast)
	other := newTestClient(uuid.New(), "direct_messages:a_b")
	hub.clients[subscribed] = true
	hub.clients[other] = true

	hub.fanOut(realtime.InsertEvent{
		StreamKey:  syncer.KeyBroadcast,
		Record:     []byte(`{"content":"hello"}`),
		ReceivedAt: time.Now(),
	})

	ev := recvEvent(t, subscribed)
	if ev == nil || ev.Stream != syncer.KeyBroadcast {
		t.Fatalf("subscribed client missed event: %+v", ev)
	}
	if got := recvEvent(t, other); got != nil {
		t.Fatalf("unsubscribed client received event: %+v", got)
	}
}

func TestFanOutSkipsMutedChannels(t *testing.T) {
	channelID := uuid.New()
	mutedUser := uuid.New()
	key := syncer.KeyChannel(channelID)

	hub := NewHub(func(userID, ch uuid.UUID) bool {
		return userID == mutedUser && ch == channelID
	})
	muted := newTestClient(mutedUser, key)
	listening := newTestClient(uuid.New(), key)
	hub.clients[muted] = true
	hub.clients[listening] = true

	hub.fanOut(realtime.InsertEvent{
		StreamKey:  key,
		Record:     []byte(`{"content":"hello"}`),
		ReceivedAt: time.Now(),
	})

	if got := recvEvent(t, muted); got != nil {
		t.Fatalf("muted client received event: %+v", got)
	}
	if got := recvEvent(t, listening); got == nil {
		t.Fatal("listening client missed event")
	}
}

func TestChannelIDOf(t *testing.T) {
	channelID := uuid.New()

	id, ok := channelIDOf(syncer.KeyChannel(channelID))
	if !ok || id != channelID {
		t.Fatalf("channel key not parsed: %v %v", id, ok)
	}
	if _, ok := channelIDOf(syncer.KeyBroadcast); ok {
		t.Fatal("broadcast key misread as channel")
	}
	if _, ok := channelIDOf(syncer.KeyChannelPrefix + "not-a-uuid"); ok {
		t.Fatal("garbage channel id accepted")
	}
}
