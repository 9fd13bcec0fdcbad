package tts

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors, one per error code. A *TTSError matches its sentinel with
// errors.Is.
var (
	// ErrCacheUnavailable indicates the cache storage could not be read or written.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrQuotaExceeded indicates the synthesis gateway refused the request for billing reasons.
	ErrQuotaExceeded = errors.New("synthesis quota exceeded")

	// ErrRateLimited indicates the synthesis gateway throttled the request.
	ErrRateLimited = errors.New("synthesis rate limited")

	// ErrSynthesisFailed indicates any other gateway failure or a malformed response.
	ErrSynthesisFailed = errors.New("text synthesis failed")

	// ErrPlaybackFailed indicates decoded audio could not be played.
	ErrPlaybackFailed = errors.New("playback failed")

	// ErrInvalidInput indicates a request was rejected before any work was done.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCanceled indicates an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// TTSError represents a TTS-specific error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's code.
func (e *TTSError) Is(target error) bool {
	return target == e.Code.sentinel()
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	ErrorCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	ErrorCodeQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	ErrorCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrorCodeSynthesisFailed  ErrorCode = "SYNTHESIS_FAILED"
	ErrorCodePlaybackFailed   ErrorCode = "PLAYBACK_FAILED"
	ErrorCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorCodeCanceled         ErrorCode = "CANCELED"
)

func (c ErrorCode) sentinel() error {
	switch c {
	case ErrorCodeCacheUnavailable:
		return ErrCacheUnavailable
	case ErrorCodeQuotaExceeded:
		return ErrQuotaExceeded
	case ErrorCodeRateLimited:
		return ErrRateLimited
	case ErrorCodeSynthesisFailed:
		return ErrSynthesisFailed
	case ErrorCodePlaybackFailed:
		return ErrPlaybackFailed
	case ErrorCodeInvalidInput:
		return ErrInvalidInput
	case ErrorCodeCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

// NewTTSError creates a new TTS error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	e.Context[key] = value
	return e
}

// IsRetryable returns true if the caller may retry after a delay.
// Nothing in this module retries automatically.
func (e *TTSError) IsRetryable() bool {
	return e.Code == ErrorCodeRateLimited
}

// IsUserFacing returns true for conditions that must reach the end user
// instead of being absorbed into degraded behavior.
func (e *TTSError) IsUserFacing() bool {
	return e.Code == ErrorCodeQuotaExceeded
}

// CodeOf returns the code of the first *TTSError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var te *TTSError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsQuotaExceeded reports whether err carries the QuotaExceeded code.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsRetryable reports whether err is a retryable TTS error.
func IsRetryable(err error) bool {
	var te *TTSError
	return errors.As(err, &te) && te.IsRetryable()
}

// ShouldFallback reports whether err should be absorbed by switching to the
// local speech fallback. Cancellation is the only gateway outcome that must
// not trigger it.
func ShouldFallback(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrCanceled) && !errors.Is(err, context.Canceled)
}
