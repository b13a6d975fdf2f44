// Package errors provides the standardized error type used by lifecycle reactions.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeEventDecodeFailed         ErrorCode = "EVENT_DECODE_FAILED"
	ErrCodeEventValidationFailed     ErrorCode = "EVENT_VALIDATION_FAILED"
	ErrCodeAlertValidationFailed     ErrorCode = "ALERT_VALIDATION_FAILED"
	ErrCodeRecipientResolutionFailed ErrorCode = "RECIPIENT_RESOLUTION_FAILED"
	ErrCodeProfileLookupFailed       ErrorCode = "PROFILE_LOOKUP_FAILED"
	ErrCodePushTransportFailed       ErrorCode = "PUSH_TRANSPORT_FAILED"
	ErrCodeReactionTimeout           ErrorCode = "REACTION_TIMEOUT"
	ErrCodeReactionPanic             ErrorCode = "REACTION_PANIC"
	ErrCodeInternal                  ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
}

// WithMetadata attaches a key/value to the error and returns it.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ToOutcomeVariables returns a flat map suitable for job completion variables and log fields.
func (e *StandardError) ToOutcomeVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":     string(e.Code),
		"errorMessage":  e.Message,
		"errorDetails":  e.Details,
		"retryable":     e.Retryable,
		"errorCategory": GetErrorCategory(e.Code),
	}
	for k, v := range e.Metadata {
		vars[k] = v
	}
	return vars
}

// Lifecycle reactions are never retried by the event source, so every constructor below
// produces a non-retryable error.

func NewEventDecodeFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEventDecodeFailed,
		Message:   "Event payload could not be decoded",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewEventValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEventValidationFailed,
		Message:   "Event payload failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAlertValidationFailedError(alertID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlertValidationFailed,
		Message:   "Alert document is missing required fields",
		Details:   fmt.Sprintf("alertId: %s, %s", alertID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewRecipientResolutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientResolutionFailed,
		Message:   "Recipient resolution did not complete",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewProfileLookupFailedError(userID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileLookupFailed,
		Message:   "Profile store lookup failed",
		Details:   fmt.Sprintf("userId: %s, error: %s", userID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewPushTransportFailedError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePushTransportFailed,
		Message:   fmt.Sprintf("Push transport '%s' call failed", provider),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewReactionTimeoutError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeReactionTimeout,
		Message:   "Reaction exceeded its deadline",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewReactionPanicError(recovered interface{}) *StandardError {
	return &StandardError{
		Code:      ErrCodeReactionPanic,
		Message:   "Reaction panicked",
		Details:   fmt.Sprintf("%v", recovered),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// GetErrorCategory groups codes for dashboards and log filtering.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "EVENT_") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "RECIPIENT") || strings.Contains(codeStr, "PROFILE"):
		return "PROFILE_STORE"
	case strings.Contains(codeStr, "PUSH"):
		return "TRANSPORT"
	case strings.HasPrefix(codeStr, "REACTION_"):
		return "RUNTIME"
	default:
		return "OTHER"
	}
}
