// ABOUTME: Error taxonomy shared by the streaming engine packages
// ABOUTME: Conversion, setup, device, and invariant error types built on errorx
package audio

import (
	"errors"

	"github.com/joomcode/errorx"
)

var (
	// Errors is the namespace for every engine error type
	Errors = errorx.NewNamespace("audio")

	// ConversionError marks a single sample that could not be quantized.
	// It is recovered locally and never interrupts a stream.
	ConversionError = Errors.NewType("conversion")

	// SetupError marks a processing unit or codec that failed to load.
	// It is returned to the caller that asked for it.
	SetupError = Errors.NewType("setup")

	// DeviceError marks an output or input device that is unavailable.
	DeviceError = Errors.NewType("device")

	// InvariantError marks a programming error. Engine code panics with it.
	InvariantError = Errors.NewType("invariant")
)

var (
	ErrNotOpen     = errors.New("device not open")
	ErrNotRunning  = errors.New("not running")
	ErrUnsupported = errors.New("unsupported format")
)

// IsDevice reports whether err is, or wraps, a device error
func IsDevice(err error) bool {
	return isOfType(err, DeviceError)
}

// IsSetup reports whether err is, or wraps, a setup error
func IsSetup(err error) bool {
	return isOfType(err, SetupError)
}

// isOfType also looks through fmt.Errorf wrapping
func isOfType(err error, t *errorx.Type) bool {
	var e *errorx.Error
	return errors.As(err, &e) && e.IsOfType(t)
}
