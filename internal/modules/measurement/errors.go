package measurement

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is matched by every DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrUnsupportedMode is matched by every UnsupportedModeError.
	ErrUnsupportedMode = errors.New("unsupported mode")
	// ErrToleranceExceeded is matched by every ToleranceExceededError.
	ErrToleranceExceeded = errors.New("tolerance exceeded")
)

// DimensionMismatchError represents incompatible shapes between operands
type DimensionMismatchError struct {
	Message string
	Err     error
}

func (e *DimensionMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dimension mismatch: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("dimension mismatch: %s", e.Message)
}

func (e *DimensionMismatchError) Unwrap() error {
	return e.Err
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// UnsupportedModeError represents an unknown state mode, sampling method or
// contraction implementation
type UnsupportedModeError struct {
	Kind  string
	Value string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("unsupported %s: %q", e.Kind, e.Value)
}

func (e *UnsupportedModeError) Is(target error) bool {
	return target == ErrUnsupportedMode
}

// ToleranceExceededError represents a probability array that violates a
// numerical tolerance
type ToleranceExceededError struct {
	Check string
	Value float64
	Eps   float64
}

func (e *ToleranceExceededError) Error() string {
	return fmt.Sprintf("tolerance exceeded: %s is %g (eps %g)", e.Check, e.Value, e.Eps)
}

func (e *ToleranceExceededError) Is(target error) bool {
	return target == ErrToleranceExceeded
}

func dimErr(format string, args ...any) error {
	return &DimensionMismatchError{Message: fmt.Sprintf(format, args...)}
}
