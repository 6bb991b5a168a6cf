package msgrelay

import (
	"errors"
	"fmt"
)

// Error represents a msgrelay error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Connection error codes.
const (
	// ErrCodeConnectionFailed indicates the transport connection attempt failed.
	ErrCodeConnectionFailed = "CONNECTION_FAILED"

	// ErrCodeNetworkUnavailable indicates no network path to the target.
	ErrCodeNetworkUnavailable = "NETWORK_UNAVAILABLE"

	// ErrCodeAuthenticationFailed indicates the transport rejected credentials.
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"

	// ErrCodeDisconnectionFailed indicates teardown of the transport failed.
	ErrCodeDisconnectionFailed = "DISCONNECTION_FAILED"

	// ErrCodeTimeout indicates a connect or send exceeded its deadline.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeServerUnreachable indicates the target address could not be reached.
	ErrCodeServerUnreachable = "SERVER_UNREACHABLE"

	// ErrCodeReconnectExhausted indicates reconnection attempts exceeded the cap.
	ErrCodeReconnectExhausted = "RECONNECT_EXHAUSTED"
)

// Message error codes.
const (
	// ErrCodeSendFailed indicates an outbound delivery attempt failed.
	ErrCodeSendFailed = "SEND_FAILED"

	// ErrCodeReceiveFailed indicates inbound traffic could not be read.
	ErrCodeReceiveFailed = "RECEIVE_FAILED"

	// ErrCodeSerialization indicates an envelope could not be encoded.
	ErrCodeSerialization = "SERIALIZATION_ERROR"

	// ErrCodeDeserialization indicates an inbound frame could not be decoded.
	ErrCodeDeserialization = "DESERIALIZATION_ERROR"

	// ErrCodeNoConnection indicates no connected endpoint is available.
	ErrCodeNoConnection = "NO_CONNECTION"

	// ErrCodeQueueFull indicates the queue capacity limit was reached.
	ErrCodeQueueFull = "QUEUE_FULL"

	// ErrCodeInvalidMessage indicates the message failed validation.
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
)

// Infrastructure error codes.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeStorage indicates a persistence operation failed.
	ErrCodeStorage = "STORAGE_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a store lookup has no result.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrNoConnection is returned when the pool has no connected endpoint.
	ErrNoConnection = &Error{
		Code:    ErrCodeNoConnection,
		Message: "no connected endpoint available",
	}

	// ErrQueueFull is returned when enqueue would exceed the capacity limit.
	ErrQueueFull = &Error{
		Code:    ErrCodeQueueFull,
		Message: "queue capacity exceeded",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// codeOf extracts the msgrelay error code from err, or "".
func codeOf(err error) string {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Code
	}
	return ""
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return codeOf(err) == ErrCodeNoData || errors.Is(err, ErrNoData)
}

// IsNoConnection checks if an error indicates no usable endpoint.
func IsNoConnection(err error) bool {
	return codeOf(err) == ErrCodeNoConnection || errors.Is(err, ErrNoConnection)
}

// IsQueueFull checks if an error indicates the queue was at capacity.
func IsQueueFull(err error) bool {
	return codeOf(err) == ErrCodeQueueFull || errors.Is(err, ErrQueueFull)
}

// IsTimeout checks if an error indicates a connect or send deadline expired.
func IsTimeout(err error) bool {
	return codeOf(err) == ErrCodeTimeout
}
