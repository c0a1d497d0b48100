package hal

import "errors"

// Domain-specific errors for peripheral access.
var (
	// ErrUnsupportedMode is returned when the hardware mode is unknown or
	// not available on this platform.
	ErrUnsupportedMode = errors.New("hal: unsupported hardware mode")

	// ErrShortRead is returned when a bus returns fewer bytes than requested.
	ErrShortRead = errors.New("hal: short read")

	// ErrNoDevice is returned when no device answers at an I2C address.
	ErrNoDevice = errors.New("hal: no device at address")

	// ErrInvalidSample is returned when an ADC reading cannot be parsed.
	ErrInvalidSample = errors.New("hal: invalid ADC sample")
)
