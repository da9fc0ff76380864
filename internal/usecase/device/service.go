package device

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainDevice "comm-terminal/internal/domain/device"
	"comm-terminal/internal/domain/message"
	"comm-terminal/internal/logger"
	appErrors "comm-terminal/pkg/errors"
	"comm-terminal/pkg/utils"
)

// restAPI is the slice of the REST client this service needs.
type restAPI interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
	Post(ctx context.Context, path string, body interface{}) ([]byte, error)
	Patch(ctx context.Context, path string, body interface{}) ([]byte, error)
}

// Service manages the player's communication device over the persistence
// layer's player_devices resource. Devices are never hard-deleted.
type Service struct {
	rest restAPI
}

func NewService(rest restAPI) *Service {
	return &Service{rest: rest}
}

// GetDevice returns the owner's device, or nil when none is provisioned.
// Capability checks on a nil device yield the most restrictive answer.
func (s *Service) GetDevice(ctx context.Context, ownerID uuid.UUID) (*domainDevice.Device, error) {
	q := url.Values{}
	q.Set("owner_id", ownerID.String())
	q.Set("limit", "1")

	data, err := s.rest.Get(ctx, "player_devices", q)
	if err != nil {
		return nil, err
	}

	raws, err := message.SplitRecords(data)
	if err != nil {
		return nil, appErrors.NewDecodingError("malformed player_devices response", err)
	}

	rows, _ := message.DecodeRecords[deviceRow](raws)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

// EnsureDevice returns the owner's device, provisioning the default
// receive-only device on first contact.
func (s *Service) EnsureDevice(ctx context.Context, ownerID uuid.UUID) (*domainDevice.Device, error) {
	existing, err := s.GetDevice(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	body := map[string]interface{}{
		"owner_id":    ownerID,
		"device_type": domainDevice.TypeReceiveOnly,
		"tier_level":  1,
		"active":      true,
		// fresh hardware ships charged
		"battery_level":   100,
		"signal_strength": 100,
	}
	data, err := s.rest.Post(ctx, "player_devices", body)
	if err != nil {
		return nil, err
	}

	row, err := message.DecodeRecord[deviceRow](data)
	if err != nil {
		return nil, appErrors.NewDecodingError("malformed provisioned device", err)
	}

	logger.Info("Provisioned default device",
		zap.String("owner_id", ownerID.String()),
		zap.String("device_id", row.ID.String()),
		zap.String("event", "device_provisioned"),
	)
	return row.toDomain(), nil
}

// UpdateVitals patches battery/signal readings.
func (s *Service) UpdateVitals(ctx context.Context, deviceID uuid.UUID, req *UpdateVitalsRequest) (*domainDevice.Device, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError("invalid vitals update", err)
	}

	body := map[string]interface{}{}
	if req.BatteryLevel != nil {
		body["battery_level"] = *req.BatteryLevel
	}
	if req.SignalStrength != nil {
		body["signal_strength"] = *req.SignalStrength
	}
	if len(body) == 0 {
		return nil, appErrors.NewValidationError("no fields to update", nil)
	}

	data, err := s.rest.Patch(ctx, "player_devices/"+deviceID.String(), body)
	if err != nil {
		return nil, err
	}
	row, err := message.DecodeRecord[deviceRow](data)
	if err != nil {
		return nil, appErrors.NewDecodingError("malformed device row", err)
	}
	return row.toDomain(), nil
}

// UpgradeTier applies a purchased upgrade: a new device type and, for the
// long-range tier, a level.
func (s *Service) UpgradeTier(ctx context.Context, deviceID uuid.UUID, req *UpgradeTierRequest) (*domainDevice.Device, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError("invalid tier upgrade", err)
	}

	tierLevel := req.TierLevel
	if tierLevel < 1 {
		tierLevel = 1
	}

	body := map[string]interface{}{
		"device_type": req.DeviceType,
		"tier_level":  tierLevel,
		"active":      true,
	}
	data, err := s.rest.Patch(ctx, "player_devices/"+deviceID.String(), body)
	if err != nil {
		return nil, err
	}
	row, err := message.DecodeRecord[deviceRow](data)
	if err != nil {
		return nil, appErrors.NewDecodingError("malformed device row", err)
	}

	logger.Info("Device tier upgraded",
		zap.String("device_id", deviceID.String()),
		zap.String("device_type", req.DeviceType),
		zap.Int("tier_level", tierLevel),
		zap.String("event", "device_upgraded"),
	)
	return row.toDomain(), nil
}

// Deactivate soft-disables a device (never hard-deleted).
func (s *Service) Deactivate(ctx context.Context, deviceID uuid.UUID) error {
	_, err := s.rest.Patch(ctx, "player_devices/"+deviceID.String(), map[string]interface{}{
		"active": false,
	})
	return err
}
