package shadow

import "fmt"

// Status is the result code reported by a Transport call.
//
// The engine stores the most recent Status and classifies it to decide
// whether the poll loop continues, skips a cycle, or terminates.
type Status int

// Transport status codes.
const (
	// StatusOK means the last call succeeded.
	StatusOK Status = iota

	// StatusReconnecting means the session lost its connection and an
	// automatic reconnect is in progress.
	StatusReconnecting

	// StatusReconnected means the session reconnected since the last Yield.
	StatusReconnected

	// StatusInitFailed means the session could not be initialised.
	StatusInitFailed

	// StatusConnectFailed means the initial connect attempt failed.
	StatusConnectFailed

	// StatusDisconnected means the connection is gone and will not come back.
	StatusDisconnected

	// StatusSerializeFailed means an outgoing document could not be prepared.
	StatusSerializeFailed

	// StatusPublishFailed means a publish was refused by the client or broker.
	StatusPublishFailed

	// StatusSubscribeFailed means a subscription could not be established.
	StatusSubscribeFailed

	// StatusAckTableFull means too many submissions are waiting for acks.
	StatusAckTableFull

	// StatusDeltaTableFull means no more delta keys can be registered.
	StatusDeltaTableFull

	// StatusInvalidParameter means the call received unusable arguments.
	StatusInvalidParameter

	// StatusFailed is any transport failure without a more specific code.
	StatusFailed
)

var statusNames = map[Status]string{
	StatusOK:               "ok",
	StatusReconnecting:     "reconnecting",
	StatusReconnected:      "reconnected",
	StatusInitFailed:       "init_failed",
	StatusConnectFailed:    "connect_failed",
	StatusDisconnected:     "disconnected",
	StatusSerializeFailed:  "serialize_failed",
	StatusPublishFailed:    "publish_failed",
	StatusSubscribeFailed:  "subscribe_failed",
	StatusAckTableFull:     "ack_table_full",
	StatusDeltaTableFull:   "delta_table_full",
	StatusInvalidParameter: "invalid_parameter",
	StatusFailed:           "failed",
}

// String returns the snake_case name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Health is the classification of a Status.
type Health int

const (
	// HealthAlive means the connection is usable; the cycle proceeds.
	HealthAlive Health = iota

	// HealthNotReady means the connection is alive but reconnecting;
	// the cycle's report step is skipped.
	HealthNotReady

	// HealthFatal means the session cannot continue; the loop terminates.
	HealthFatal
)

// String returns the name of the health class.
func (h Health) String() string {
	switch h {
	case HealthAlive:
		return "alive"
	case HealthNotReady:
		return "not_ready"
	default:
		return "fatal"
	}
}

// Classify maps a transport status to its health class.
//
// OK and Reconnected are Alive. Reconnecting is NotReady, which is still
// alive but tells the caller to skip sending this cycle. Every other status,
// including values this package does not name, is Fatal.
func Classify(s Status) Health {
	switch s {
	case StatusOK, StatusReconnected:
		return HealthAlive
	case StatusReconnecting:
		return HealthNotReady
	default:
		return HealthFatal
	}
}

// AckStatus is the outcome of a submitted report.
type AckStatus int

const (
	// AckTimeout means no response arrived before the submission timed out.
	AckTimeout AckStatus = iota

	// AckRejected means the remote side refused the document.
	AckRejected

	// AckAccepted means the remote side applied the document.
	AckAccepted
)

// String returns the name of the ack outcome.
func (a AckStatus) String() string {
	switch a {
	case AckTimeout:
		return "timeout"
	case AckRejected:
		return "rejected"
	case AckAccepted:
		return "accepted"
	default:
		return fmt.Sprintf("ack(%d)", int(a))
	}
}

// Action identifies the shadow operation an ack refers to.
type Action string

// Shadow actions.
const (
	ActionUpdate Action = "update"
	ActionGet    Action = "get"
	ActionDelete Action = "delete"
)
