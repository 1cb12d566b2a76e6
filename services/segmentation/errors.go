package segmentation

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError is returned when a backend, model or class list cannot be used. It is
// only raised while constructing a pipeline and should abort startup.
type ConfigurationError struct {
	msg string
}

// NewConfigurationError returns a ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...interface{}) error {
	return errors.WithStack(&ConfigurationError{msg: fmt.Sprintf(format, args...)})
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.msg
}

// IsConfigurationError returns whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// RuntimeUnavailableError is returned when the runtime behind a backend cannot run in this
// environment: its shared library is missing, it was compiled out, or the requested device
// does not exist.
type RuntimeUnavailableError struct {
	Backend string
	Err     error
}

// NewRuntimeUnavailableError wraps the cause of a backend being unusable.
func NewRuntimeUnavailableError(backend string, err error) error {
	return errors.WithStack(&RuntimeUnavailableError{Backend: backend, Err: err})
}

func (e *RuntimeUnavailableError) Error() string {
	return fmt.Sprintf("%s runtime unavailable: %v", e.Backend, e.Err)
}

func (e *RuntimeUnavailableError) Unwrap() error {
	return e.Err
}

// IsRuntimeUnavailable returns whether err is or wraps a RuntimeUnavailableError.
func IsRuntimeUnavailable(err error) bool {
	var target *RuntimeUnavailableError
	return errors.As(err, &target)
}

// FrameSkippedError reports that a single frame could not be segmented. The caller drops the
// frame and continues with the next one.
type FrameSkippedError struct {
	Reason string
}

// NewFrameSkippedError returns a FrameSkippedError with a formatted reason.
func NewFrameSkippedError(format string, args ...interface{}) error {
	return &FrameSkippedError{Reason: fmt.Sprintf(format, args...)}
}

func (e *FrameSkippedError) Error() string {
	return "frame skipped: " + e.Reason
}

// IsFrameSkipped returns whether err is or wraps a FrameSkippedError.
func IsFrameSkipped(err error) bool {
	var target *FrameSkippedError
	return errors.As(err, &target)
}
