// Package realtime delivers new-row insert events pushed by the persistence
// layer over MQTT. It is the only path by which this subsystem receives push
// traffic; it never writes game data.
package realtime

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"comm-terminal/internal/logger"
	pkgmqtt "comm-terminal/pkg/mqtt"
)

// InsertEvent is a pushed new-row notification. Record holds the raw row
// JSON; decoding is left to the owning service so undecodable rows can be
// dropped per-record.
type InsertEvent struct {
	StreamKey  string
	Record     []byte
	ReceivedAt time.Time
}

// Handler consumes insert events for one stream.
type Handler func(InsertEvent)

// Subscriber maps logical stream keys onto broker topics and fans events to
// per-stream handlers.
type Subscriber struct {
	client *pkgmqtt.Client
	prefix string
	qos    byte

	mu     sync.Mutex
	topics map[string]string // streamKey -> topic
}

func NewSubscriber(client *pkgmqtt.Client, topicPrefix string, qos byte) (*Subscriber, error) {
	if client == nil {
		return nil, errors.New("realtime client is required")
	}
	if topicPrefix == "" {
		topicPrefix = "rt"
	}
	return &Subscriber{
		client: client,
		prefix: topicPrefix,
		qos:    qos,
		topics: make(map[string]string),
	}, nil
}

// TopicFor translates a stream key to its broker topic. Key segments are
// colon-separated ("channel_messages:<id>"); topics are slash-separated with
// an insert suffix.
func (s *Subscriber) TopicFor(streamKey string) string {
	return s.prefix + "/" + strings.ReplaceAll(streamKey, ":", "/") + "/insert"
}

// Subscribe opens the push stream for streamKey. Subscribing to an already
// subscribed key is an error; the coordinator supersedes streams by
// unsubscribing first.
func (s *Subscriber) Subscribe(streamKey string, handler Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	s.mu.Lock()
	if _, exists := s.topics[streamKey]; exists {
		s.mu.Unlock()
		return fmt.Errorf("stream %s already subscribed", streamKey)
	}
	topic := s.TopicFor(streamKey)
	s.topics[streamKey] = topic
	s.mu.Unlock()

	err := s.client.Subscribe(topic, s.qos, func(_ string, payload []byte) {
		handler(InsertEvent{
			StreamKey:  streamKey,
			Record:     payload,
			ReceivedAt: time.Now(),
		})
	})
	if err != nil {
		s.mu.Lock()
		delete(s.topics, streamKey)
		s.mu.Unlock()
		return err
	}

	logger.WithStream(streamKey).Info("Realtime stream opened", zap.String("topic", topic))
	return nil
}

// Unsubscribe tears the stream down. Unknown keys are a no-op.
func (s *Subscriber) Unsubscribe(streamKey string) {
	s.mu.Lock()
	topic, exists := s.topics[streamKey]
	if exists {
		delete(s.topics, streamKey)
	}
	s.mu.Unlock()

	if !exists {
		return
	}
	if err := s.client.Unsubscribe(topic); err != nil {
		logger.WithStream(streamKey).Warn("Failed to unsubscribe", zap.Error(err))
	}
	logger.WithStream(streamKey).Info("Realtime stream closed")
}

// OnReconnect registers a callback invoked after the transport reconnects.
// Events published while disconnected are not replayed, so callers should
// refresh from REST.
func (s *Subscriber) OnReconnect(fn func()) {
	s.client.OnConnect(fn)
}

// Connected reports broker connectivity for the health endpoint.
func (s *Subscriber) Connected() bool {
	return s.client.IsConnected()
}
