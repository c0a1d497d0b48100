package shadow

import (
	"errors"
	"fmt"
)

// Domain errors for the shadow package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, shadow.ErrDuplicateKey) {
//	    // handle duplicate registration
//	}
var (
	// ErrCapacityExceeded is returned when registering into a full registry.
	ErrCapacityExceeded = errors.New("shadow: registry capacity exceeded")

	// ErrDuplicateKey is returned when a key is already registered.
	ErrDuplicateKey = errors.New("shadow: duplicate key")

	// ErrInvalidKey is returned for keys that cannot be written as a JSON key verbatim.
	ErrInvalidKey = errors.New("shadow: invalid key")

	// ErrInvalidCell is returned when a binding has no storage behind it.
	ErrInvalidCell = errors.New("shadow: invalid cell")

	// ErrTransportRegistration is returned when the transport refuses a delta subscription.
	// The binding remains in the local table.
	ErrTransportRegistration = errors.New("shadow: transport delta registration failed")

	// ErrEncodingOverflow is returned when a report does not fit the output buffer.
	ErrEncodingOverflow = errors.New("shadow: report exceeds buffer capacity")

	// ErrEncodingInvalid is returned when a value has no JSON representation (NaN, Inf).
	ErrEncodingInvalid = errors.New("shadow: value cannot be encoded")

	// ErrNoReported is returned by BuildReport when no binding is marked reported.
	ErrNoReported = errors.New("shadow: no reported bindings")

	// ErrInvalidDeltaValue is returned when a delta value does not match the binding type.
	ErrInvalidDeltaValue = errors.New("shadow: invalid delta value")

	// ErrNotRunning is returned by operations that need a running engine.
	ErrNotRunning = errors.New("shadow: engine not running")

	// ErrConnectFailed is returned when transport init or connect fails.
	ErrConnectFailed = errors.New("shadow: connect failed")

	// ErrSubmitFailed is returned when the transport rejects a report submission.
	ErrSubmitFailed = errors.New("shadow: report submission failed")
)

// RegistrationError identifies which key failed to register and why.
type RegistrationError struct {
	Key string
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registering %q: %v", e.Key, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
