package shadow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeltaFunc receives the raw JSON value of a delta for a subscribed key.
type DeltaFunc func(key string, raw []byte)

// AckFunc receives the outcome of a submitted report.
//
// It is called exactly once per accepted submission, from inside
// Transport.Yield on the poll goroutine. document is the response body from
// the remote side (nil on timeout) and is only valid during the call.
type AckFunc func(thing string, action Action, status AckStatus, document []byte)

// Transport is the shadow session the engine drives.
//
// Implementations own the network: connection management, reconnects,
// retries, and the mapping between shadow operations and pub/sub topics.
// Deltas and acks that arrive on network goroutines must be queued and
// delivered only from inside Yield.
type Transport interface {
	// Init prepares the session. Called once before Connect.
	Init() error

	// Connect opens the session to host:port.
	Connect(ctx context.Context, host string, port int) error

	// Yield processes pending network events for up to timeout and returns
	// the current session status.
	Yield(timeout time.Duration) Status

	// RegisterDelta routes remote deltas for key to fn.
	RegisterDelta(key string, fn DeltaFunc) error

	// Update submits a report document. The transport copies document if it
	// keeps it beyond the call. ack fires once the remote side answers or
	// timeout elapses.
	Update(document []byte, ack AckFunc, timeout time.Duration) error

	// Disconnect closes the session. Calling it on a closed session is a no-op.
	Disconnect() error

	// ThingName returns the shadow name this session reports to.
	ThingName() string
}

// StatusError carries a transport Status alongside the underlying cause.
type StatusError struct {
	Status Status
	Err    error
}

// NewStatusError wraps err with status s.
func NewStatusError(s Status, err error) *StatusError {
	return &StatusError{Status: s, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusOf extracts the transport status from err.
// nil maps to StatusOK; errors without a status map to StatusFailed.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusFailed
}
