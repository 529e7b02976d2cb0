package backend

import (
	"errors"
	"strings"
)

// ErrUnavailable indicates the binary was built without a real model runtime.
var ErrUnavailable = errors.New("model runtime not built (missing 'llama' build tag)")

// oomError marks a device memory exhaustion reported by the runtime.
type oomError struct{ msg string }

func (e oomError) Error() string { return e.msg }

// NewOOMError wraps a runtime allocation failure so the engine can classify
// it as a per-request resource error.
func NewOOMError(msg string) error { return oomError{msg: msg} }

// IsOutOfMemory reports whether err is a device memory exhaustion. Runtime
// libraries surface OOM as plain strings, so this also sniffs well-known
// driver message fragments.
func IsOutOfMemory(err error) bool {
	if err == nil {
		return false
	}
	var oe oomError
	if errors.As(err, &oe) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{"out of memory", "oom", "cuda error 2", "failed to allocate"} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// unsupportedQuantError marks a quantization request the runtime cannot
// honor. The loader may fall back to full precision on these.
type unsupportedQuantError struct{ msg string }

func (e unsupportedQuantError) Error() string { return e.msg }

// NewUnsupportedQuantizationError wraps a quantization capability failure.
func NewUnsupportedQuantizationError(msg string) error { return unsupportedQuantError{msg: msg} }

// IsUnsupportedQuantization reports whether err is a quantization
// capability failure rather than a broken model.
func IsUnsupportedQuantization(err error) bool {
	var qe unsupportedQuantError
	return errors.As(err, &qe)
}

// fatalError marks an unrecoverable device fault; the handle must not be
// reused after one of these.
type fatalError struct{ msg string }

func (e fatalError) Error() string { return e.msg }

// NewFatalError wraps an unrecoverable device fault.
func NewFatalError(msg string) error { return fatalError{msg: msg} }

// IsFatal reports whether err poisoned the device context.
func IsFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}
