package device

import "errors"

// Domain-specific errors for device operations.
var (
	// ErrSensorRead is returned when a refresh could not read its sensor.
	ErrSensorRead = errors.New("device: sensor read failed")

	// ErrActuator is returned when an output could not be driven.
	ErrActuator = errors.New("device: actuator write failed")
)
