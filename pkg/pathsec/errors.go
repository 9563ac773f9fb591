package pathsec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when an engine is built from an unusable configuration
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrUnsafeInput is the sentinel every *Error unwraps to
	ErrUnsafeInput = errors.New("unsafe input")

	// ErrUnknownPlatform is returned by RulesFor for an unrecognised platform name
	ErrUnknownPlatform = errors.New("unknown platform")
)

// Error describes a rejected input. It is produced by ValidationResult.Err
// so callers that prefer error returns can use errors.As.
type Error struct {
	Reason Reason
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unsafe input: %s", e.Reason.Describe())
	}
	return fmt.Sprintf("unsafe input: %s", e.Detail)
}

// Unwrap returns ErrUnsafeInput
func (e *Error) Unwrap() error {
	return ErrUnsafeInput
}

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
