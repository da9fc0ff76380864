package message

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"comm-terminal/internal/domain/device"
)

type MessageType string

const (
	TypeBroadcast MessageType = "broadcast"
	TypeSystem    MessageType = "system"
)

type ChannelType string

const (
	ChannelOfficial ChannelType = "official"
	ChannelPublic   ChannelType = "public"
	ChannelPrivate  ChannelType = "private"
)

// SystemSenderName is the synthetic sender shown for system-type messages.
const SystemSenderName = "TERMINAL"

// Message is a global broadcast entry. Immutable once created; identity is
// the globally unique ID, ordering is created_at ascending.
type Message struct {
	ID                uuid.UUID   `json:"id"`
	SenderID          uuid.UUID   `json:"sender_id"`
	Content           string      `json:"content"`
	Type              MessageType `json:"message_type"`
	SenderDisplayName string      `json:"sender_display_name,omitempty"`
	CreatedAt         Time        `json:"created_at"`
}

func (m Message) Key() uuid.UUID       { return m.ID }
func (m Message) Timestamp() time.Time { return m.CreatedAt.Time }

// DisplaySender resolves the name shown for this message.
func (m Message) DisplaySender() string {
	if m.Type == TypeSystem {
		return SystemSenderName
	}
	return m.SenderDisplayName
}

// ChannelMessage is the broadcast shape scoped to a topic channel.
type ChannelMessage struct {
	ID                uuid.UUID   `json:"id"`
	ChannelID         uuid.UUID   `json:"channel_id"`
	SenderID          uuid.UUID   `json:"sender_id"`
	Content           string      `json:"content"`
	Type              MessageType `json:"message_type"`
	SenderDisplayName string      `json:"sender_display_name,omitempty"`
	CreatedAt         Time        `json:"created_at"`
}

func (m ChannelMessage) Key() uuid.UUID       { return m.ID }
func (m ChannelMessage) Timestamp() time.Time { return m.CreatedAt.Time }

func (m ChannelMessage) DisplaySender() string {
	if m.Type == TypeSystem {
		return SystemSenderName
	}
	return m.SenderDisplayName
}

// DirectMessage is a peer-to-peer message. DistanceKm is computed once at
// send time and is a historical record, not a live value.
type DirectMessage struct {
	ID               uuid.UUID         `json:"id"`
	SenderID         uuid.UUID         `json:"sender_id"`
	RecipientID      uuid.UUID         `json:"recipient_id"`
	Content          string            `json:"content"`
	SenderDeviceType device.DeviceType `json:"sender_device_type"`
	SenderLat        *float64          `json:"sender_lat,omitempty"`
	SenderLon        *float64          `json:"sender_lon,omitempty"`
	DistanceKm       *float64          `json:"distance_km,omitempty"`
	Read             bool              `json:"read"`
	CreatedAt        Time              `json:"created_at"`
}

func (m DirectMessage) Key() uuid.UUID       { return m.ID }
func (m DirectMessage) Timestamp() time.Time { return m.CreatedAt.Time }

// Channel is a topic channel. Official channels are receive-only for all
// non-owner members.
type Channel struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Code            *string     `json:"code,omitempty"`
	Type            ChannelType `json:"channel_type"`
	OwnerID         *uuid.UUID  `json:"owner_id,omitempty"`
	RangeKm         *float64    `json:"range_km,omitempty"`
	SubscriberCount int         `json:"subscriber_count"`
	MessageCount    int         `json:"message_count"`
	CreatedAt       Time        `json:"created_at"`
}

// PostableBy reports whether a non-system user may post to this channel.
func (c Channel) PostableBy(userID uuid.UUID) bool {
	if c.Type != ChannelOfficial {
		return true
	}
	return c.OwnerID != nil && *c.OwnerID == userID
}

// Subscription records channel membership, unique per (user, channel) pair.
type Subscription struct {
	UserID       uuid.UUID `json:"user_id"`
	ChannelID    uuid.UUID `json:"channel_id"`
	SubscribedAt Time      `json:"subscribed_at"`
	Muted        bool      `json:"muted"`
}

// ConversationKey identifies a direct conversation by the unordered pair of
// participants. Both orders of the same pair yield the same key.
func ConversationKey(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	return first + "_" + second
}
