package device

import (
	"math"

	"github.com/google/uuid"

	domainDevice "comm-terminal/internal/domain/device"
	"comm-terminal/internal/domain/message"
)

type UpdateVitalsRequest struct {
	BatteryLevel   *int `json:"battery_level" validate:"omitempty,min=0,max=100"`
	SignalStrength *int `json:"signal_strength" validate:"omitempty,min=0,max=100"`
}

type UpgradeTierRequest struct {
	DeviceType string `json:"device_type" validate:"required,oneof=short_range mid_range long_range"`
	TierLevel  int    `json:"tier_level" validate:"omitempty,min=1"`
}

// deviceRow is the player_devices wire shape with defensive timestamps.
type deviceRow struct {
	ID             uuid.UUID               `json:"id"`
	OwnerID        uuid.UUID               `json:"owner_id"`
	DeviceType     domainDevice.DeviceType `json:"device_type"`
	BatteryLevel   int                     `json:"battery_level"`
	SignalStrength int                     `json:"signal_strength"`
	RangeKm        float64                 `json:"range_km"`
	TierLevel      int                     `json:"tier_level"`
	Active         bool                    `json:"active"`
	CreatedAt      message.Time            `json:"created_at"`
	UpdatedAt      message.Time            `json:"updated_at"`
}

func (r deviceRow) toDomain() *domainDevice.Device {
	return &domainDevice.Device{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Type:           r.DeviceType,
		BatteryLevel:   r.BatteryLevel,
		SignalStrength: r.SignalStrength,
		RangeKm:        r.RangeKm,
		TierLevel:      r.TierLevel,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
}

// DeviceResponse is the UI-facing view of a device, with the derived
// capability fields the terminal screen renders.
type DeviceResponse struct {
	ID               uuid.UUID               `json:"id"`
	OwnerID          uuid.UUID               `json:"owner_id"`
	DeviceType       domainDevice.DeviceType `json:"device_type"`
	BatteryLevel     int                     `json:"battery_level"`
	SignalStrength   int                     `json:"signal_strength"`
	TierLevel        int                     `json:"tier_level"`
	Active           bool                    `json:"active"`
	EffectiveRangeKm *float64                `json:"effective_range_km,omitempty"`
	CanSend          bool                    `json:"can_send"`
	CanReceive       bool                    `json:"can_receive"`
	CannotSendReason string                  `json:"cannot_send_reason,omitempty"`
}

func ToDeviceResponse(d *domainDevice.Device) *DeviceResponse {
	if d == nil {
		return nil
	}
	resp := &DeviceResponse{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		DeviceType:     d.Type,
		BatteryLevel:   d.BatteryLevel,
		SignalStrength: d.SignalStrength,
		TierLevel:      d.TierLevel,
		Active:         d.Active,
		CanSend:        d.CanSend(),
		CanReceive:     d.CanReceive(),
	}
	if r := d.EffectiveRangeKm(); !math.IsInf(r, 1) {
		resp.EffectiveRangeKm = &r
	}
	if reason, barred := domainDevice.ReasonCannotSend(d); barred {
		resp.CannotSendReason = reason
	}
	return resp
}
