package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest           = "bad_request"
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeNotFound             = "not_found"
	ErrCodeStoreFailure         = "store_failure"
	ErrCodeAlreadyAuthenticated = "already_authenticated"
	ErrCodeSessionReplaced      = "session_replaced"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeInvalidMessage       = "invalid_message"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	// ErrStoreFailure wraps durable read/write failures. The triggering
	// request fails; the process keeps running.
	ErrStoreFailure = errors.New("store failure")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// errorFromErr maps a router error onto the code shown to the sender.
func errorFromErr(err error) *CoreError {
	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return coreError(ErrCodeUnauthorized, "authenticate first")
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	default:
		// Store details stay in the server log.
		return coreError(ErrCodeStoreFailure, "message could not be saved")
	}
}
