package models

import (
	"errors"
	"fmt"
)

// Error codes used in outbound messages, API responses and internal error handling.
const (
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeFetch             = "FETCH_FAILED"
	ErrCodeEmptyResponse     = "EMPTY_RESPONSE"
	ErrCodePayload           = "PAYLOAD_INVALID"
	ErrCodeSessionLocked     = "SESSION_LOCKED"
	ErrCodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrCodeWaitTimeout       = "WAIT_TIMEOUT"
	ErrCodeBrowserCrash      = "BROWSER_CRASH"
	ErrCodeExtraction        = "EXTRACTION_FAILED"

	// API-level codes.
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeQueueFull    = "QUEUE_FULL"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first ScrapeError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// MessageOf returns the user-facing message of the first ScrapeError in err's
// chain, falling back to err.Error().
func MessageOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
