package phonepe

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork           = errors.New("phonepe: network error")
	ErrGatewayDeclined   = errors.New("phonepe: request declined by gateway")
	ErrInvalidSignature  = errors.New("phonepe: invalid webhook signature")
	ErrUndecodableStatus = errors.New("phonepe: unable to decode payment status")
)

// NetworkError is returned when the gateway could not be reached or answered
// with a non-2xx status. StatusCode is zero for transport failures.
type NetworkError struct {
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("phonepe: network error: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("phonepe: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// GatewayError carries the message of a response with success=false or no
// data block.
type GatewayError struct {
	Code    string
	Message string
	Raw     []byte
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("phonepe: %s (code=%s)", e.Message, e.Code)
	}
	return "phonepe: " + e.Message
}

func (e *GatewayError) Is(target error) bool { return target == ErrGatewayDeclined }
