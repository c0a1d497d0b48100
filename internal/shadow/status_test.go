package shadow

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status Status
		want   Health
	}{
		{StatusOK, HealthAlive},
		{StatusReconnected, HealthAlive},
		{StatusReconnecting, HealthNotReady},
		{StatusInitFailed, HealthFatal},
		{StatusConnectFailed, HealthFatal},
		{StatusDisconnected, HealthFatal},
		{StatusSerializeFailed, HealthFatal},
		{StatusPublishFailed, HealthFatal},
		{StatusSubscribeFailed, HealthFatal},
		{StatusAckTableFull, HealthFatal},
		{StatusDeltaTableFull, HealthFatal},
		{StatusInvalidParameter, HealthFatal},
		{StatusFailed, HealthFatal},
		{Status(99), HealthFatal},
		{Status(-1), HealthFatal},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := Classify(tt.status); got != tt.want {
				t.Errorf("Classify(%s) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	if got := StatusReconnecting.String(); got != "reconnecting" {
		t.Errorf("String() = %q, want reconnecting", got)
	}
	if got := Status(42).String(); got != "status(42)" {
		t.Errorf("String() = %q, want status(42)", got)
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(nil); got != StatusOK {
		t.Errorf("StatusOf(nil) = %s, want ok", got)
	}

	cause := errors.New("broker refused")
	err := fmt.Errorf("connecting: %w", NewStatusError(StatusConnectFailed, cause))
	if got := StatusOf(err); got != StatusConnectFailed {
		t.Errorf("StatusOf(wrapped) = %s, want connect_failed", got)
	}
	if !errors.Is(err, cause) {
		t.Error("StatusError should unwrap to its cause")
	}

	if got := StatusOf(errors.New("plain")); got != StatusFailed {
		t.Errorf("StatusOf(plain) = %s, want failed", got)
	}
}

func TestAckStatusString(t *testing.T) {
	tests := map[AckStatus]string{
		AckTimeout:  "timeout",
		AckRejected: "rejected",
		AckAccepted: "accepted",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
