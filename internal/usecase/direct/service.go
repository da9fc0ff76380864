// Package direct handles peer-to-peer messages gated by the live distance
// between sender and recipient relative to the sender's effective device
// range.
package direct

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainDevice "comm-terminal/internal/domain/device"
	"comm-terminal/internal/domain/message"
	"comm-terminal/internal/logger"
	"comm-terminal/internal/syncer"
	"comm-terminal/internal/transport/realtime"
	appErrors "comm-terminal/pkg/errors"
	"comm-terminal/pkg/geo"
)

type restAPI interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
	Post(ctx context.Context, path string, body interface{}) ([]byte, error)
	Patch(ctx context.Context, path string, body interface{}) ([]byte, error)
}

type deviceProvider interface {
	GetDevice(ctx context.Context, ownerID uuid.UUID) (*domainDevice.Device, error)
}

type streamControl interface {
	Start(key string, handler realtime.Handler, resync func()) error
	Stop(key string)
}

// LocationProvider resolves a player's last persisted position. Position
// tracking belongs to the exploration subsystem; this is its boundary.
type LocationProvider interface {
	LastKnownLocation(ctx context.Context, userID uuid.UUID) (geo.Point, time.Time, error)
}

type Service struct {
	rest         restAPI
	coord        streamControl
	devices      deviceProvider
	locations    LocationProvider
	metrics      *syncer.MetricsTracker
	historyLimit int
	staleAfter   time.Duration

	mu        sync.Mutex
	activeKey string
	stream    *syncer.Stream[message.DirectMessage]
	listeners []func([]message.DirectMessage)
}

func NewService(rest restAPI, coord streamControl, devices deviceProvider, locations LocationProvider, metrics *syncer.MetricsTracker, historyLimit int, staleAfter time.Duration) *Service {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Service{
		rest:         rest,
		coord:        coord,
		devices:      devices,
		locations:    locations,
		metrics:      metrics,
		historyLimit: historyLimit,
		staleAfter:   staleAfter,
	}
}

// CanCommunicateWith decides whether the sender's device reaches the
// recipient. Not allowed comes with a human-readable reason.
func (s *Service) CanCommunicateWith(dev *domainDevice.Device, selfLoc, peerLoc geo.Point) (bool, string) {
	if reason, barred := domainDevice.ReasonCannotSend(dev); barred {
		return false, reason
	}

	distance := geo.DistanceKm(selfLoc, peerLoc)
	limit := dev.EffectiveRangeKm()
	if distance > limit {
		return false, fmt.Sprintf("out of range: %.1fkm > limit %.1fkm", distance, limit)
	}
	return true, ""
}

// SendMessage validates reachability at send time, not render time, so a
// move by either party between render and send is caught. The computed
// distance is stamped into the record as a permanent snapshot. Validation
// failures never reach the transport.
func (s *Service) SendMessage(ctx context.Context, senderID, recipientID uuid.UUID, content string, selfLoc geo.Point) (*message.DirectMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, appErrors.NewValidationError("message content is empty", appErrors.ErrEmptyContent)
	}
	if recipientID == uuid.Nil || recipientID == senderID {
		return nil, appErrors.NewValidationError("recipient could not be resolved", appErrors.ErrRecipientUnknown)
	}

	dev, err := s.devices.GetDevice(ctx, senderID)
	if err != nil {
		return nil, err
	}

	peerLoc, seenAt, err := s.locations.LastKnownLocation(ctx, recipientID)
	if err != nil {
		return nil, appErrors.NewValidationError("recipient could not be resolved", err)
	}
	// Policy: gate on the last persisted position regardless of age. The
	// game loop persists positions at least once a minute, so anything
	// older than the staleness window is worth flagging.
	if s.staleAfter > 0 && time.Since(seenAt) > s.staleAfter {
		logger.Warn("Recipient position is stale",
			zap.String("recipient_id", recipientID.String()),
			zap.Duration("age", time.Since(seenAt)),
		)
	}

	allowed, reason := s.CanCommunicateWith(dev, selfLoc, peerLoc)
	if !allowed {
		return nil, appErrors.NewAuthorizationError(reason, appErrors.ErrOutOfRange)
	}

	distance := geo.DistanceKm(selfLoc, peerLoc)
	body := map[string]interface{}{
		"sender_id":          senderID,
		"recipient_id":       recipientID,
		"content":            content,
		"sender_device_type": dev.Type,
		"sender_lat":         selfLoc.Latitude,
		"sender_lon":         selfLoc.Longitude,
		"distance_km":        distance,
		"read":               false,
	}

	data, err := s.rest.Post(ctx, "direct_messages", body)
	if err != nil {
		return nil, err
	}

	sent, err := message.DecodeRecord[message.DirectMessage](data)
	if err != nil {
		return nil, appErrors.NewDecodingError("malformed direct message row", err)
	}
	return &sent, nil
}

// Reachability is the UI probe: resolves the sender's device and the
// recipient's last persisted position, then runs the same gate SendMessage
// applies. The distance is advisory; a send re-validates.
type Reachability struct {
	Allowed    bool    `json:"allowed"`
	Reason     string  `json:"reason,omitempty"`
	DistanceKm float64 `json:"distance_km"`
	RangeKm    float64 `json:"range_km"`
}

func (s *Service) CheckReachability(ctx context.Context, senderID, recipientID uuid.UUID, selfLoc geo.Point) (*Reachability, error) {
	if recipientID == uuid.Nil || recipientID == senderID {
		return nil, appErrors.NewValidationError("recipient could not be resolved", appErrors.ErrRecipientUnknown)
	}

	dev, err := s.devices.GetDevice(ctx, senderID)
	if err != nil {
		return nil, err
	}

	peerLoc, _, err := s.locations.LastKnownLocation(ctx, recipientID)
	if err != nil {
		return nil, appErrors.NewValidationError("recipient could not be resolved", err)
	}

	allowed, reason := s.CanCommunicateWith(dev, selfLoc, peerLoc)
	return &Reachability{
		Allowed:    allowed,
		Reason:     reason,
		DistanceKm: geo.DistanceKm(selfLoc, peerLoc),
		RangeKm:    dev.EffectiveRangeKm(),
	}, nil
}

// LoadMessages loads the conversation ascending by created_at and opens a
// realtime subscription scoped to the pair. Loading a different conversation
// supersedes the previous subscription.
func (s *Service) LoadMessages(ctx context.Context, selfID, peerID uuid.UUID) ([]message.DirectMessage, error) {
	key := syncer.KeyConversation(selfID, peerID)

	s.mu.Lock()
	if s.activeKey != "" && s.activeKey != key {
		s.coord.Stop(s.activeKey)
	}
	s.activeKey = key
	stream := syncer.NewStream[message.DirectMessage](key, s.metrics)
	s.stream = stream
	s.mu.Unlock()

	// Listeners are registered on the service, not the stream, so they follow
	// the user across conversation switches instead of dying with the old
	// stream.
	stream.OnChange(s.notifyListeners)

	if err := s.loadHistory(ctx, selfID, peerID, stream); err != nil {
		return nil, err
	}

	resync := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.loadHistory(ctx, selfID, peerID, stream); err != nil {
			logger.WithStream(key).Warn("Conversation resync failed", zap.Error(err))
		}
	}

	handler := func(ev realtime.InsertEvent) {
		dm, err := message.DecodeRecord[message.DirectMessage](ev.Record)
		if err != nil {
			if s.metrics != nil {
				s.metrics.Update(func(m *syncer.StreamMetrics) { m.RecordsDropped++ })
			}
			logger.WithStream(key).Error("Dropping undecodable direct message event", zap.Error(err))
			return
		}
		stream.Apply(dm)
	}

	if err := s.coord.Start(key, handler, resync); err != nil {
		return nil, appErrors.NewTransportError("failed to open conversation stream", err)
	}

	return stream.Items(), nil
}

// StopSubscription tears down the active conversation stream. Safe to call
// when nothing is active.
func (s *Service) StopSubscription() {
	s.mu.Lock()
	key := s.activeKey
	s.activeKey = ""
	s.mu.Unlock()

	if key != "" {
		s.coord.Stop(key)
	}
}

// Messages returns the active conversation cache in ascending order.
func (s *Service) Messages() []message.DirectMessage {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Items()
}

// OnMessages subscribes to updates of the active conversation. The
// subscription survives LoadMessages calls: switching conversations does not
// require re-registering.
func (s *Service) OnMessages(listener func([]message.DirectMessage)) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

func (s *Service) notifyListeners(items []message.DirectMessage) {
	s.mu.Lock()
	listeners := append([]func([]message.DirectMessage){}, s.listeners...)
	s.mu.Unlock()
	for _, listener := range listeners {
		listener(items)
	}
}

// MarkRead flags a received message as read.
func (s *Service) MarkRead(ctx context.Context, messageID uuid.UUID) error {
	_, err := s.rest.Patch(ctx, "direct_messages/"+messageID.String(), map[string]interface{}{
		"read": true,
	})
	return err
}

func (s *Service) loadHistory(ctx context.Context, selfID, peerID uuid.UUID, stream *syncer.Stream[message.DirectMessage]) error {
	q := url.Values{}
	q.Set("conversation", message.ConversationKey(selfID, peerID))
	q.Set("order", "created_at.asc")
	q.Set("limit", strconv.Itoa(s.historyLimit))

	data, err := s.rest.Get(ctx, "direct_messages", q)
	if err != nil {
		return err
	}
	raws, err := message.SplitRecords(data)
	if err != nil {
		return appErrors.NewDecodingError("malformed direct_messages response", err)
	}

	msgs, dropped := message.DecodeRecords[message.DirectMessage](raws)
	if dropped > 0 && s.metrics != nil {
		s.metrics.Update(func(m *syncer.StreamMetrics) { m.RecordsDropped += int64(dropped) })
	}
	stream.MergeSnapshot(msgs)
	return nil
}
