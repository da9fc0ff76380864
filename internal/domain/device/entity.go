package device

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DeviceType is the tier of a player's communication device.
type DeviceType string

const (
	TypeReceiveOnly DeviceType = "receive_only"
	TypeShortRange  DeviceType = "short_range"
	TypeMidRange    DeviceType = "mid_range"
	TypeLongRange   DeviceType = "long_range"
)

// Tier default ranges in kilometers. The long-range tier is the only
// upgradeable one; its base range scales with the tier level.
const (
	shortRangeDefaultKm = 5.0
	midRangeDefaultKm   = 50.0
	longRangeBaseKm     = 100.0
)

func (t DeviceType) IsValid() bool {
	switch t {
	case TypeReceiveOnly, TypeShortRange, TypeMidRange, TypeLongRange:
		return true
	default:
		return false
	}
}

// CapableOfSending reports whether the tier can transmit at all.
func (t DeviceType) CapableOfSending() bool {
	return t.IsValid() && t != TypeReceiveOnly
}

// DefaultRangeKm is the tier's range before any stored override or level bonus.
func (t DeviceType) DefaultRangeKm() float64 {
	switch t {
	case TypeShortRange:
		return shortRangeDefaultKm
	case TypeMidRange:
		return midRangeDefaultKm
	case TypeLongRange:
		return longRangeBaseKm
	default:
		return 0
	}
}

// Device represents a player's communication device. Devices are never
// hard-deleted, only deactivated.
type Device struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Type           DeviceType `json:"device_type"`
	BatteryLevel   int        `json:"battery_level"`
	SignalStrength int        `json:"signal_strength"`
	RangeKm        float64    `json:"range_km"`
	TierLevel      int        `json:"tier_level"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EffectiveRangeKm applies tier and level bonuses to the stored range.
// A receive-only device can hear everything, so its receive range is
// unbounded; it still cannot send.
func (d *Device) EffectiveRangeKm() float64 {
	if d == nil {
		return 0
	}
	switch d.Type {
	case TypeReceiveOnly:
		return math.Inf(1)
	case TypeLongRange:
		level := d.TierLevel
		if level < 1 {
			level = 1
		}
		return longRangeBaseKm * float64(level)
	default:
		if d.RangeKm > 0 {
			return math.Max(d.RangeKm, d.Type.DefaultRangeKm())
		}
		return d.Type.DefaultRangeKm()
	}
}

// CanSend reports whether the device may transmit right now.
func (d *Device) CanSend() bool {
	if d == nil {
		return false
	}
	return d.Type.CapableOfSending() && d.Active && d.BatteryLevel > 0
}

// CanReceive reports whether the device may receive right now.
func (d *Device) CanReceive() bool {
	if d == nil {
		return false
	}
	return d.Active && d.BatteryLevel > 0
}

// ReasonCannotSend returns a human-readable reason the device cannot send,
// or ok=false when sending is permitted. Checks are ordered; absence of
// data yields the most restrictive answer.
func ReasonCannotSend(d *Device) (string, bool) {
	switch {
	case d == nil:
		return "no device", true
	case !d.Active:
		return "device inactive", true
	case d.BatteryLevel <= 0:
		return "battery depleted", true
	case !d.Type.CapableOfSending():
		return "device is receive-only", true
	default:
		return "", false
	}
}
