package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// The error taxonomy below maps 1:1 onto the stable wire `type` strings.
// Request-scoped kinds (validation, not-ready, too-busy, resource, timeout)
// never alter model state; load errors are process-scoped.

type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }
func (validationError) StatusCode() int { return http.StatusBadRequest }
func (validationError) TypeString() string { return "ValidationError" }

// ErrValidation constructs a request validation failure.
func ErrValidation(format string, args ...any) error {
	return validationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var e validationError
	return errors.As(err, &e)
}

type notReadyError struct{ phase Phase }

func (e notReadyError) Error() string {
	return fmt.Sprintf("model not ready (phase=%s), retry later", e.phase)
}
func (notReadyError) StatusCode() int { return http.StatusServiceUnavailable }
func (notReadyError) TypeString() string { return "NotReadyError" }

// ErrNotReady signals the model is still warming up; callers should retry.
func ErrNotReady(phase Phase) error { return notReadyError{phase: phase} }

// IsNotReady reports whether err means the model is still loading.
func IsNotReady(err error) bool {
	var e notReadyError
	return errors.As(err, &e)
}

type tooBusyError struct{}

func (tooBusyError) Error() string { return "generation queue is full, try again later" }
func (tooBusyError) StatusCode() int { return http.StatusTooManyRequests }
func (tooBusyError) TypeString() string { return "TooBusyError" }

// ErrTooBusy signals queue overflow or admission timeout for 429 mapping.
func ErrTooBusy() error { return tooBusyError{} }

// IsTooBusy reports whether err indicates backpressure.
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

type resourceError struct{ msg string }

func (e resourceError) Error() string { return e.msg }
func (resourceError) StatusCode() int { return http.StatusServiceUnavailable }
func (resourceError) TypeString() string { return "ResourceError" }

// ErrResource signals device memory exhaustion during one request; the
// model handle remains usable.
func ErrResource(format string, args ...any) error {
	return resourceError{msg: fmt.Sprintf(format, args...)}
}

// IsResource reports whether err is a per-request device memory failure.
func IsResource(err error) bool {
	var e resourceError
	return errors.As(err, &e)
}

type timeoutError struct{ msg string }

func (e timeoutError) Error() string { return e.msg }
func (timeoutError) StatusCode() int { return http.StatusGatewayTimeout }
func (timeoutError) TypeString() string { return "TimeoutError" }

// ErrTimeout signals the generation call exceeded its configured bound.
func ErrTimeout(format string, args ...any) error {
	return timeoutError{msg: fmt.Sprintf(format, args...)}
}

// IsTimeout reports whether err is an execution timeout.
func IsTimeout(err error) bool {
	var e timeoutError
	return errors.As(err, &e)
}

type loadError struct{ msg string }

func (e loadError) Error() string { return e.msg }
func (loadError) StatusCode() int { return http.StatusInternalServerError }
func (loadError) TypeString() string { return "ModelLoadError" }

// ErrLoad signals a process-scoped model loading failure.
func ErrLoad(format string, args ...any) error {
	return loadError{msg: fmt.Sprintf(format, args...)}
}

// IsLoadError reports whether err is a fatal model loading failure.
func IsLoadError(err error) bool {
	var e loadError
	return errors.As(err, &e)
}

// typed is implemented by every classified error above.
type typed interface {
	TypeString() string
	StatusCode() int
}

// Classify maps any error to its stable wire type string and HTTP status.
// Unknown errors classify as InternalError and are reported generically.
func Classify(err error) (string, int) {
	var t typed
	if errors.As(err, &t) {
		return t.TypeString(), t.StatusCode()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TimeoutError", http.StatusGatewayTimeout
	}
	return "InternalError", http.StatusInternalServerError
}
