package sensor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failed sensor reads.
// Params: none.
// Returns: enum value.
type ErrorKind uint8

const (
	// KindTimeout means the sensor did not answer in time.
	KindTimeout ErrorKind = iota
	// KindIntegrity means data arrived but failed checksum validation.
	KindIntegrity
	// KindIO means transport or GPIO failure.
	KindIO
	// KindRuntime means the read call itself failed unexpectedly.
	KindRuntime
)

// String returns human-readable kind name.
// Params: none.
// Returns: kind name used by CLI and logs.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindIntegrity:
		return "integrity"
	case KindIO:
		return "IO"
	case KindRuntime:
		return "runtime"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText encodes kind as its name.
// Params: none.
// Returns: kind name bytes.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var (
	// ErrTimeout is returned by drivers when the sensor does not respond.
	ErrTimeout = errors.New("sensor timeout")
	// ErrChecksum is returned by drivers when payload checksum mismatches.
	ErrChecksum = errors.New("sensor checksum mismatch")
)

// GPIOError wraps low-level GPIO/transport failures reported by drivers.
// Params: Err underlying cause.
// Returns: driver error value.
type GPIOError struct {
	Err error
}

// Error implements error.
func (e *GPIOError) Error() string {
	if e.Err == nil {
		return "gpio fault"
	}
	return "gpio fault: " + e.Err.Error()
}

// Unwrap returns underlying cause.
func (e *GPIOError) Unwrap() error {
	return e.Err
}

// Error is the classified failure returned by Sensor.Read.
// Params: Kind failure class; Err underlying driver error or recovered panic.
// Returns: sensor error value.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err == nil {
		return "sensor " + e.Kind.String() + " error"
	}
	return "sensor " + e.Kind.String() + " error: " + e.Err.Error()
}

// Unwrap returns the underlying driver error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps driver errors onto ErrorKind.
// Params: err driver error (non-nil).
// Returns: matching kind; KindRuntime for errors outside the driver contract.
func Classify(err error) ErrorKind {
	var gpioErr *GPIOError
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrChecksum):
		return KindIntegrity
	case errors.As(err, &gpioErr):
		return KindIO
	default:
		return KindRuntime
	}
}

// KindOf extracts failure kind from a Sensor.Read error.
// Params: err read error (non-nil).
// Returns: carried kind, or Classify result for unclassified errors.
func KindOf(err error) ErrorKind {
	var sensorErr *Error
	if errors.As(err, &sensorErr) {
		return sensorErr.Kind
	}
	return Classify(err)
}
