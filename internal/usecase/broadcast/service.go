// Package broadcast is the global, unscoped, send-to-everyone channel:
// REST history load plus a realtime tail, deduplicated by message id.
package broadcast

import (
	"context"
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
	"comm-terminal/internal/observe"
	"comm-terminal/internal/syncer"
	"comm-terminal/internal/transport/realtime"
	appErrors "comm-terminal/pkg/errors"
)

// State is the per-session lifecycle of the broadcast stream.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateReceiving State = "receiving"
	StateError     State = "error"
)

const maxHistoryLimit = 50

type restAPI interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
	Post(ctx context.Context, path string, body interface{}) ([]byte, error)
}

type deviceProvider interface {
	GetDevice(ctx context.Context, ownerID uuid.UUID) (*domainDevice.Device, error)
}

type streamControl interface {
	Start(key string, handler realtime.Handler, resync func()) error
	Stop(key string)
}

type Service struct {
	rest         restAPI
	coord        streamControl
	devices      deviceProvider
	metrics      *syncer.MetricsTracker
	historyLimit int

	state   *observe.Subject[State]
	lastErr *observe.Subject[string]
	stream  *syncer.Stream[message.Message]

	mu      sync.Mutex
	started bool
}

func NewService(rest restAPI, coord streamControl, devices deviceProvider, metrics *syncer.MetricsTracker, historyLimit int) *Service {
	if historyLimit <= 0 || historyLimit > maxHistoryLimit {
		historyLimit = maxHistoryLimit
	}
	return &Service{
		rest:         rest,
		coord:        coord,
		devices:      devices,
		metrics:      metrics,
		historyLimit: historyLimit,
		state:        observe.NewSubject(StateIdle),
		lastErr:      observe.NewSubject(""),
		stream:       syncer.NewStream[message.Message](syncer.KeyBroadcast, metrics),
	}
}

// Start loads recent history and opens the realtime tail. Calling Start on a
// running service supersedes the prior subscription rather than stacking a
// second one.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Set(StateLoading)
	if err := s.loadHistory(ctx); err != nil {
		s.recordError(err)
		return err
	}
	s.state.Set(StateReady)

	resync := func() {
		// Gap window after reconnect: refresh from REST, dedup absorbs overlap.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.loadHistory(ctx); err != nil {
			s.recordTransient(err)
		}
	}

	if err := s.coord.Start(syncer.KeyBroadcast, s.handleEvent, resync); err != nil {
		s.recordError(err)
		return appErrors.NewTransportError("failed to open broadcast stream", err)
	}
	s.started = true
	return nil
}

// Send posts a broadcast via the REST path. Content and device eligibility
// are validated before any network call; the cache reflects the message once
// the realtime echo arrives (server-ack discipline).
func (s *Service) Send(ctx context.Context, senderID uuid.UUID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return appErrors.NewValidationError("message content is empty", appErrors.ErrEmptyContent)
	}

	dev, err := s.devices.GetDevice(ctx, senderID)
	if err != nil {
		return err
	}
	if reason, barred := domainDevice.ReasonCannotSend(dev); barred {
		return appErrors.NewAuthorizationError(reason, nil)
	}

	_, err = s.rest.Post(ctx, "messages", map[string]interface{}{
		"sender_id":    senderID,
		"content":      content,
		"message_type": message.TypeBroadcast,
	})
	if err != nil {
		s.recordTransient(err)
		return err
	}
	return nil
}

// Stop tears the realtime subscription down. Safe to call multiple times.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.coord.Stop(syncer.KeyBroadcast)
	s.started = false
	s.state.Set(StateIdle)
}

// Messages returns the deduplicated cache in created_at ascending order.
func (s *Service) Messages() []message.Message {
	return s.stream.Items()
}

// OnMessages subscribes to cache updates.
func (s *Service) OnMessages(listener func([]message.Message)) {
	s.stream.OnChange(listener)
}

func (s *Service) State() State {
	return s.state.Get()
}

func (s *Service) OnState(listener func(State)) {
	s.state.OnChange(listener)
}

// LastError returns the most recent recorded stream error, empty when clean.
func (s *Service) LastError() string {
	return s.lastErr.Get()
}

func (s *Service) handleEvent(ev realtime.InsertEvent) {
	s.state.Set(StateReceiving)
	defer s.state.Set(StateReady)

	msg, err := message.DecodeRecord[message.Message](ev.Record)
	if err != nil {
		// Fail closed: an undecodable record is dropped, never defaulted.
		if s.metrics != nil {
			s.metrics.Update(func(m *syncer.StreamMetrics) { m.RecordsDropped++ })
		}
		logger.WithStream(syncer.KeyBroadcast).Error("Dropping undecodable broadcast event", zap.Error(err))
		return
	}
	s.stream.Apply(msg)
}

// loadHistory fetches the most recent page (created_at descending) and
// merges it ascending for display.
func (s *Service) loadHistory(ctx context.Context) error {
	q := url.Values{}
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(s.historyLimit))

	data, err := s.rest.Get(ctx, "messages", q)
	if err != nil {
		return err
	}
	raws, err := message.SplitRecords(data)
	if err != nil {
		return appErrors.NewDecodingError("malformed messages response", err)
	}

	msgs, dropped := message.DecodeRecords[message.Message](raws)
	if dropped > 0 && s.metrics != nil {
		s.metrics.Update(func(m *syncer.StreamMetrics) { m.RecordsDropped += int64(dropped) })
	}

	// Reverse descending page into ascending display order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	s.stream.MergeSnapshot(msgs)
	return nil
}

// recordError notes a failure and leaves the state in Error. Used when the
// stream could not be brought up.
func (s *Service) recordError(err error) {
	s.lastErr.Set(err.Error())
	s.state.Set(StateError)
	logger.WithStream(syncer.KeyBroadcast).Warn("Broadcast stream error", zap.Error(err))
}

// recordTransient notes a failure on a live stream. The error is surfaced,
// then the state settles back to Ready the same way an applied event does:
// the realtime tail is still attached and the next send should not be gated
// on inbound traffic arriving first.
func (s *Service) recordTransient(err error) {
	s.recordError(err)
	s.mu.Lock()
	running := s.started
	s.mu.Unlock()
	if running {
		s.state.Set(StateReady)
	}
}
