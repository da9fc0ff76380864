// Package channel is the topic-channel registry: the catalog of official,
// public and private channels, per-player subscription state, and the
// active channel's message history.
package channel

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

type subscriptionKey struct {
	userID    uuid.UUID
	channelID uuid.UUID
}

type Registry struct {
	rest         restAPI
	coord        streamControl
	devices      deviceProvider
	metrics      *syncer.MetricsTracker
	historyLimit int

	mu            sync.RWMutex
	official      []message.Channel
	catalog       map[uuid.UUID]message.Channel
	subscriptions map[subscriptionKey]message.Subscription

	active       *observe.Subject[uuid.UUID]
	activeStream *syncer.Stream[message.ChannelMessage]
}

func NewRegistry(rest restAPI, coord streamControl, devices deviceProvider, metrics *syncer.MetricsTracker, historyLimit int) *Registry {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Registry{
		rest:          rest,
		coord:         coord,
		devices:       devices,
		metrics:       metrics,
		historyLimit:  historyLimit,
		catalog:       make(map[uuid.UUID]message.Channel),
		subscriptions: make(map[subscriptionKey]message.Subscription),
		active:        observe.NewSubject(uuid.Nil),
	}
}

// ListOfficialChannels fetches the system-seeded channels, replacing the
// cache on success. On failure the previous cache is returned alongside the
// error so the terminal keeps rendering something.
func (r *Registry) ListOfficialChannels(ctx context.Context) ([]message.Channel, error) {
	q := url.Values{}
	q.Set("channel_type", string(message.ChannelOfficial))

	data, err := r.rest.Get(ctx, "channels", q)
	if err != nil {
		r.mu.RLock()
		cached := append([]message.Channel{}, r.official...)
		r.mu.RUnlock()
		return cached, err
	}

	channels, err := r.decodeChannels(data)
	if err != nil {
		r.mu.RLock()
		cached := append([]message.Channel{}, r.official...)
		r.mu.RUnlock()
		return cached, err
	}

	r.mu.Lock()
	r.official = channels
	for _, ch := range channels {
		r.catalog[ch.ID] = ch
	}
	r.mu.Unlock()
	return channels, nil
}

// ListSubscribed fetches the channels the player belongs to, refreshing the
// local subscription set. Cache semantics match ListOfficialChannels.
func (r *Registry) ListSubscribed(ctx context.Context, userID uuid.UUID) ([]message.Channel, error) {
	q := url.Values{}
	q.Set("user_id", userID.String())

	data, err := r.rest.Get(ctx, "channel_subscriptions", q)
	if err != nil {
		return r.cachedSubscribed(userID), err
	}
	raws, err := message.SplitRecords(data)
	if err != nil {
		return r.cachedSubscribed(userID), appErrors.NewDecodingError("malformed subscriptions response", err)
	}
	subs, _ := message.DecodeRecords[message.Subscription](raws)

	q = url.Values{}
	q.Set("subscribed_by", userID.String())
	chData, err := r.rest.Get(ctx, "channels", q)
	if err != nil {
		return r.cachedSubscribed(userID), err
	}
	channels, err := r.decodeChannels(chData)
	if err != nil {
		return r.cachedSubscribed(userID), err
	}

	r.mu.Lock()
	for key := range r.subscriptions {
		if key.userID == userID {
			delete(r.subscriptions, key)
		}
	}
	for _, sub := range subs {
		r.subscriptions[subscriptionKey{sub.UserID, sub.ChannelID}] = sub
	}
	for _, ch := range channels {
		r.catalog[ch.ID] = ch
	}
	r.mu.Unlock()
	return channels, nil
}

// Subscribe joins a channel. Subscribing twice is a no-op success. The local
// set is updated optimistically and rolled back on server rejection.
func (r *Registry) Subscribe(ctx context.Context, userID, channelID uuid.UUID) error {
	key := subscriptionKey{userID, channelID}

	r.mu.Lock()
	if _, already := r.subscriptions[key]; already {
		r.mu.Unlock()
		return nil
	}
	r.subscriptions[key] = message.Subscription{
		UserID:       userID,
		ChannelID:    channelID,
		SubscribedAt: message.Time{Time: time.Now().UTC()},
	}
	r.mu.Unlock()

	_, err := r.rest.Post(ctx, "channel_subscriptions", map[string]interface{}{
		"user_id":    userID,
		"channel_id": channelID,
	})
	if err != nil {
		// Roll the optimistic membership back.
		r.mu.Lock()
		delete(r.subscriptions, key)
		r.mu.Unlock()
		return err
	}

	logger.Info("Subscribed to channel",
		zap.String("user_id", userID.String()),
		zap.String("channel_id", channelID.String()),
		zap.String("event", "channel_subscribed"),
	)
	return nil
}

// Unsubscribe leaves a channel. Leaving a channel the player is not a member
// of is a no-op success.
func (r *Registry) Unsubscribe(ctx context.Context, userID, channelID uuid.UUID) error {
	key := subscriptionKey{userID, channelID}

	r.mu.Lock()
	prior, member := r.subscriptions[key]
	if !member {
		r.mu.Unlock()
		return nil
	}
	delete(r.subscriptions, key)
	r.mu.Unlock()

	_, err := r.rest.Post(ctx, "channel_subscriptions/remove", map[string]interface{}{
		"user_id":    userID,
		"channel_id": channelID,
	})
	if err != nil {
		r.mu.Lock()
		r.subscriptions[key] = prior
		r.mu.Unlock()
		return err
	}
	return nil
}

// IsSubscribed consults the local subscription set.
func (r *Registry) IsSubscribed(userID, channelID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subscriptions[subscriptionKey{userID, channelID}]
	return ok
}

// isSubscribedOrFetch resolves membership. The local set is a cache, not
// ownership: on a miss the backend's subscription row decides, and a hit is
// cached for next time. A fresh process must not reject members it simply
// has not seen yet.
func (r *Registry) isSubscribedOrFetch(ctx context.Context, userID, channelID uuid.UUID) (bool, error) {
	if r.IsSubscribed(userID, channelID) {
		return true, nil
	}

	q := url.Values{}
	q.Set("user_id", userID.String())
	q.Set("channel_id", channelID.String())
	q.Set("limit", "1")

	data, err := r.rest.Get(ctx, "channel_subscriptions", q)
	if err != nil {
		return false, err
	}
	raws, err := message.SplitRecords(data)
	if err != nil {
		return false, appErrors.NewDecodingError("malformed subscriptions response", err)
	}
	subs, _ := message.DecodeRecords[message.Subscription](raws)
	if len(subs) == 0 {
		return false, nil
	}

	r.mu.Lock()
	r.subscriptions[subscriptionKey{userID, channelID}] = subs[0]
	r.mu.Unlock()
	return true, nil
}

// Muted reports whether the player muted the channel; unknown pairs are not
// muted.
func (r *Registry) Muted(userID, channelID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subscriptions[subscriptionKey{userID, channelID}]
	return ok && sub.Muted
}

// SetMuted persists the mute flag and mirrors it locally.
func (r *Registry) SetMuted(ctx context.Context, userID, channelID uuid.UUID, muted bool) error {
	_, err := r.rest.Patch(ctx, "channel_subscriptions", map[string]interface{}{
		"user_id":    userID,
		"channel_id": channelID,
		"muted":      muted,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	key := subscriptionKey{userID, channelID}
	if sub, ok := r.subscriptions[key]; ok {
		sub.Muted = muted
		r.subscriptions[key] = sub
	}
	r.mu.Unlock()
	return nil
}

// SelectChannel makes channelID the current channel: loads its recent
// history (most recent N, shown ascending) and opens the realtime tail.
// Selecting a different channel supersedes the previous stream.
func (r *Registry) SelectChannel(ctx context.Context, channelID uuid.UUID) ([]message.ChannelMessage, error) {
	key := syncer.KeyChannel(channelID)

	r.mu.Lock()
	prior := r.active.Get()
	if prior != uuid.Nil && prior != channelID {
		r.coord.Stop(syncer.KeyChannel(prior))
	}
	stream := syncer.NewStream[message.ChannelMessage](key, r.metrics)
	r.activeStream = stream
	r.mu.Unlock()
	r.active.Set(channelID)

	if err := r.loadChannelHistory(ctx, channelID, stream); err != nil {
		return nil, err
	}

	resync := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.loadChannelHistory(ctx, channelID, stream); err != nil {
			logger.WithStream(key).Warn("Channel resync failed", zap.Error(err))
		}
	}

	handler := func(ev realtime.InsertEvent) {
		cm, err := message.DecodeRecord[message.ChannelMessage](ev.Record)
		if err != nil {
			if r.metrics != nil {
				r.metrics.Update(func(m *syncer.StreamMetrics) { m.RecordsDropped++ })
			}
			logger.WithStream(key).Error("Dropping undecodable channel event", zap.Error(err))
			return
		}
		stream.Apply(cm)
	}

	if err := r.coord.Start(key, handler, resync); err != nil {
		return nil, appErrors.NewTransportError("failed to open channel stream", err)
	}
	return stream.Items(), nil
}

// DeselectChannel stops the active channel stream, if any.
func (r *Registry) DeselectChannel() {
	prior := r.active.Get()
	if prior == uuid.Nil {
		return
	}
	r.coord.Stop(syncer.KeyChannel(prior))
	r.active.Set(uuid.Nil)

	r.mu.Lock()
	r.activeStream = nil
	r.mu.Unlock()
}

// ActiveChannelID returns the current channel pointer.
func (r *Registry) ActiveChannelID() (uuid.UUID, bool) {
	id := r.active.Get()
	return id, id != uuid.Nil
}

// OnActiveChannel observes current-channel changes.
func (r *Registry) OnActiveChannel(listener func(uuid.UUID)) {
	r.active.OnChange(listener)
}

// ChannelMessages returns the active channel's cache ascending.
func (r *Registry) ChannelMessages() []message.ChannelMessage {
	r.mu.RLock()
	stream := r.activeStream
	r.mu.RUnlock()

	if stream == nil {
		return nil
	}
	return stream.Items()
}

// OnChannelMessages observes the active channel's cache.
func (r *Registry) OnChannelMessages(listener func([]message.ChannelMessage)) {
	r.mu.RLock()
	stream := r.activeStream
	r.mu.RUnlock()

	if stream != nil {
		stream.OnChange(listener)
	}
}

// Post sends to a channel. Official channels reject all non-owner posts;
// public/private channels require membership and a sendable device. All
// checks run before the transport is touched.
func (r *Registry) Post(ctx context.Context, userID, channelID uuid.UUID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return appErrors.NewValidationError("message content is empty", appErrors.ErrEmptyContent)
	}

	ch, err := r.getChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if !ch.PostableBy(userID) {
		return appErrors.NewAuthorizationError("official channels are read-only", appErrors.ErrChannelReadOnly)
	}
	member, err := r.isSubscribedOrFetch(ctx, userID, channelID)
	if err != nil {
		return err
	}
	if !member {
		return appErrors.NewAuthorizationError("not subscribed to channel", appErrors.ErrNotSubscribed)
	}

	dev, err := r.devices.GetDevice(ctx, userID)
	if err != nil {
		return err
	}
	if reason, barred := domainDevice.ReasonCannotSend(dev); barred {
		return appErrors.NewAuthorizationError(reason, nil)
	}

	_, err = r.rest.Post(ctx, "channel_messages", map[string]interface{}{
		"channel_id":   channelID,
		"sender_id":    userID,
		"content":      content,
		"message_type": message.TypeBroadcast,
	})
	return err
}

// CreateChannel registers a player-created public or private channel.
// Official channels are system-seeded and cannot be created here.
func (r *Registry) CreateChannel(ctx context.Context, ownerID uuid.UUID, req *CreateChannelRequest) (*message.Channel, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"name":         req.Name,
		"channel_type": req.Type,
		"owner_id":     ownerID,
	}
	if req.Code != "" {
		body["code"] = req.Code
	}
	if req.RangeKm > 0 {
		body["range_km"] = req.RangeKm
	}

	data, err := r.rest.Post(ctx, "channels", body)
	if err != nil {
		return nil, err
	}
	ch, err := message.DecodeRecord[message.Channel](data)
	if err != nil {
		return nil, appErrors.NewDecodingError("malformed channel row", err)
	}

	r.mu.Lock()
	r.catalog[ch.ID] = ch
	r.mu.Unlock()
	return &ch, nil
}

func (r *Registry) cachedSubscribed(userID uuid.UUID) []message.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []message.Channel
	for key := range r.subscriptions {
		if key.userID != userID {
			continue
		}
		if ch, ok := r.catalog[key.channelID]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (r *Registry) getChannel(ctx context.Context, channelID uuid.UUID) (*message.Channel, error) {
	r.mu.RLock()
	ch, ok := r.catalog[channelID]
	r.mu.RUnlock()
	if ok {
		return &ch, nil
	}

	q := url.Values{}
	q.Set("id", channelID.String())
	data, err := r.rest.Get(ctx, "channels", q)
	if err != nil {
		return nil, err
	}
	channels, err := r.decodeChannels(data)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, appErrors.NewValidationError("channel not found", appErrors.ErrChannelNotFound)
	}

	r.mu.Lock()
	r.catalog[channels[0].ID] = channels[0]
	r.mu.Unlock()
	return &channels[0], nil
}

func (r *Registry) decodeChannels(data []byte) ([]message.Channel, error) {
	raws, err := message.SplitRecords(data)
	if err != nil {
		return nil, appErrors.NewDecodingError("malformed channels response", err)
	}
	channels, _ := message.DecodeRecords[message.Channel](raws)
	return channels, nil
}

func (r *Registry) loadChannelHistory(ctx context.Context, channelID uuid.UUID, stream *syncer.Stream[message.ChannelMessage]) error {
	q := url.Values{}
	q.Set("channel_id", channelID.String())
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(r.historyLimit))

	data, err := r.rest.Get(ctx, "channel_messages", q)
	if err != nil {
		return err
	}
	raws, err := message.SplitRecords(data)
	if err != nil {
		return appErrors.NewDecodingError("malformed channel_messages response", err)
	}
	msgs, dropped := message.DecodeRecords[message.ChannelMessage](raws)
	if dropped > 0 && r.metrics != nil {
		r.metrics.Update(func(m *syncer.StreamMetrics) { m.RecordsDropped += int64(dropped) })
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	stream.MergeSnapshot(msgs)
	return nil
}
