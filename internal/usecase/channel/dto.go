package channel

import (
	"comm-terminal/internal/domain/message"
	appErrors "comm-terminal/pkg/errors"
	"comm-terminal/pkg/utils"
)

// CreateChannelRequest describes a player-created channel. Private channels
// carry a join code; official channels cannot be created through this path.
type CreateChannelRequest struct {
	Name    string  `json:"name" validate:"required,min=2,max=64"`
	Type    string  `json:"channel_type" validate:"required,oneof=public private"`
	Code    string  `json:"code" validate:"omitempty,alphanum,min=4,max=16"`
	RangeKm float64 `json:"range_km" validate:"omitempty,gt=0"`
}

// PostRequest is a channel post body.
type PostRequest struct {
	ChannelID string `json:"channel_id" validate:"required,uuid"`
	Content   string `json:"content" validate:"required"`
}

// SubscriptionRequest targets one channel for subscribe, unsubscribe or mute.
type SubscriptionRequest struct {
	ChannelID string `json:"channel_id" validate:"required,uuid"`
	Muted     bool   `json:"muted"`
}

func validateCreate(req *CreateChannelRequest) error {
	if req == nil {
		return appErrors.NewValidationError("request body is required", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return appErrors.NewValidationError(err.Error(), err)
	}
	if message.ChannelType(req.Type) == message.ChannelPrivate && req.Code == "" {
		return appErrors.NewValidationError("private channels require a join code", nil)
	}
	return nil
}
