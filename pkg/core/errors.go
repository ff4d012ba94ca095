package core

import (
	"fmt"
	"net/url"
)

// Error represents a session error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
	Body    string    `json:"body,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Type, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInput marks malformed local state, e.g. a missing capture device.
	ErrInput ErrorType = "input_error"
	// ErrSignaling marks a failed offer/answer exchange with the remote
	// endpoint. Fatal for the current connection attempt.
	ErrSignaling ErrorType = "signaling_error"
	// ErrParse marks a malformed inbound frame or malformed function
	// arguments. Always caught at the boundary, never aborts the session.
	ErrParse ErrorType = "parse_error"
	// ErrHandler marks a registered function handler failure. Converted to
	// a normal function response carrying the error text.
	ErrHandler ErrorType = "handler_error"
	// ErrChannel marks a send attempted on a non-open control channel.
	// Logged and swallowed; the channel being closed is an expected
	// end-of-life condition.
	ErrChannel ErrorType = "channel_error"
)

// NewInputError creates an input validation error.
func NewInputError(message string) *Error {
	return &Error{
		Type:    ErrInput,
		Message: message,
	}
}

// NewSignalingError creates a signaling error carrying the remote status
// code and response body.
func NewSignalingError(status int, body string) *Error {
	return &Error{
		Type:    ErrSignaling,
		Message: "remote endpoint rejected session description",
		Status:  status,
		Body:    body,
	}
}

// NewParseError creates a parse error wrapping the decode failure.
func NewParseError(message string, cause error) *Error {
	return &Error{
		Type:    ErrParse,
		Message: message,
		Cause:   cause,
	}
}

// NewHandlerError creates a handler error.
func NewHandlerError(name string, cause error) *Error {
	return &Error{
		Type:    ErrHandler,
		Message: fmt.Sprintf("handler %s: %v", name, cause),
		Cause:   cause,
	}
}

// NewChannelError creates a channel error.
func NewChannelError(message string) *Error {
	return &Error{
		Type:    ErrChannel,
		Message: message,
	}
}

// IsFatal reports whether the error aborts the current connection attempt.
// Parse, handler, and channel errors are boundary-caught diagnostics.
func (e *Error) IsFatal() bool {
	switch e.Type {
	case ErrInput, ErrSignaling:
		return true
	default:
		return false
	}
}

// TransportError represents HTTP transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, etc.) while talking to the signaling or
// token endpoints.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from canonical session errors (*core.Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
