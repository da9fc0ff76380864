package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession          = errors.New("no authenticated session")
	ErrNoDevice           = errors.New("no device")
	ErrDeviceInactive     = errors.New("device inactive")
	ErrBatteryDepleted    = errors.New("battery depleted")
	ErrDeviceReceiveOnly  = errors.New("device is receive-only")
	ErrOutOfRange         = errors.New("recipient out of range")
	ErrEmptyContent       = errors.New("message content is empty")
	ErrChannelReadOnly    = errors.New("official channels are read-only")
	ErrNotSubscribed      = errors.New("not subscribed to channel")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrRecipientUnknown   = errors.New("recipient could not be resolved")
	ErrStreamNotStarted   = errors.New("stream has not been started")
	ErrUnparsableRecord   = errors.New("record could not be decoded")
	ErrUnparsableTime     = errors.New("timestamp could not be parsed")
)

// Taxonomy codes carried by AppError. The handler layer maps these to HTTP
// statuses; nothing in the messaging subsystem is fatal to the process.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeAuthorization = "AUTHORIZATION_ERROR"
	CodeTransport     = "TRANSPORT_ERROR"
	CodeDecoding      = "DECODING_ERROR"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewValidationError reports input rejected before any network call.
func NewValidationError(message string, err error) *AppError {
	return NewAppError(CodeValidation, message, err)
}

// NewAuthorizationError reports a send rejected by capability or policy,
// with a human-readable reason.
func NewAuthorizationError(message string, err error) *AppError {
	return NewAppError(CodeAuthorization, message, err)
}

// NewTransportError reports a recoverable network failure on a stream.
func NewTransportError(message string, err error) *AppError {
	return NewAppError(CodeTransport, message, err)
}

// NewDecodingError reports a malformed payload; the offending record is
// dropped, never the whole response.
func NewDecodingError(message string, err error) *AppError {
	return NewAppError(CodeDecoding, message, err)
}

// CodeOf extracts the taxonomy code of err, or "" if err carries none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
