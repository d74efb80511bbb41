package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeLaunchFailed  = "LAUNCH_FAILED"
	ErrCodeProcessFailed = "PROCESS_FAILED"
	ErrCodeParseFailed   = "PARSE_FAILED"
	ErrCodeTimeout       = "SCRAPE_TIMEOUT"
	ErrCodeCanceled      = "CANCELED"
	ErrCodeWorkerBusy    = "WORKER_BUSY"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON body of every failed request.
//
// Error is the stable, human-readable message; Details carries raw
// diagnostic context (worker stderr or stdout) when there is any.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Details string
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

// WithDetails attaches raw diagnostic context and returns the same error.
func (e *ScrapeError) WithDetails(details string) *ScrapeError {
	e.Details = details
	return e
}

// ToResponse converts an internal error to the API-facing error body.
func (e *ScrapeError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Code: e.Code, Details: e.Details}
}

// AsScrapeError finds the first ScrapeError in err's chain. Anything else is
// reported as an internal error carrying err's text.
func AsScrapeError(err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return NewScrapeError(ErrCodeInternal, err.Error(), err)
}
