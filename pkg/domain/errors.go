package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable identifier surfaced to callers
// alongside a short human message. Secrets never appear in messages.
type ErrorCode string

const (
	ErrorCodeAccessDenied      ErrorCode = "CONNECTION_ACCESS_DENIED"
	ErrorCodeMissingParameters ErrorCode = "CONNECTION_MISSING_PARAMETERS"
	ErrorCodeGenericDBEngine   ErrorCode = "GENERIC_DB_ENGINE_ERROR"
	ErrorCodePoolExhausted     ErrorCode = "POOL_EXHAUSTED"
	ErrorCodeScreenshotTimeout ErrorCode = "SCREENSHOT_TIMEOUT"
)

type EngineError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func NewEngineError(code ErrorCode, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

func WrapEngineError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{Code: code, Message: message, Err: err}
}

// AsEngineError unwraps err into an *EngineError when one is present in
// its chain.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// HasErrorCode reports whether err carries the given code.
func HasErrorCode(err error, code ErrorCode) bool {
	ee, ok := AsEngineError(err)
	return ok && ee.Code == code
}
