package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/shadowsync/internal/shadow"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

// mockWriter records points.
type mockWriter struct {
	mu     sync.Mutex
	points []point
}

func (m *mockWriter) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, point{measurement, tags, fields, ts})
}

func newTestMirror() (*Mirror, *mockWriter, time.Time) {
	w := &mockWriter{}
	m := NewMirror(w)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }
	return m, w, at
}

func TestMirror_ReportSubmitted(t *testing.T) {
	m, w, at := newTestMirror()

	m.ReportSubmitted("lab-board-7", []shadow.Sample{
		{Key: "rgb_light", Value: uint32(255)},
		{Key: "ambient_temp", Value: float32(23.5)},
		{Key: "heater", Value: true},
		{Key: "unsupported", Value: "text"},
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.measurement != MeasurementReport || p.tags["thing"] != "lab-board-7" || !p.ts.Equal(at) {
		t.Errorf("point = %+v", p)
	}
	want := map[string]any{"rgb_light": int64(255), "ambient_temp": float64(23.5), "heater": true}
	if len(p.fields) != len(want) {
		t.Fatalf("fields = %v, want %v", p.fields, want)
	}
	for k, v := range want {
		if p.fields[k] != v {
			t.Errorf("field %s = %v (%T), want %v (%T)", k, p.fields[k], p.fields[k], v, v)
		}
	}
}

func TestMirror_AckReceived(t *testing.T) {
	tests := []struct {
		status shadow.AckStatus
		want   string
	}{
		{shadow.AckAccepted, "accepted"},
		{shadow.AckRejected, "rejected"},
		{shadow.AckTimeout, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			m, w, _ := newTestMirror()
			m.AckReceived("t", tt.status)

			p := w.points[0]
			if p.measurement != MeasurementAck || p.tags["status"] != tt.want || p.fields["count"] != int64(1) {
				t.Errorf("point = %+v", p)
			}
		})
	}
}

func TestMirror_DeltaApplied(t *testing.T) {
	m, w, _ := newTestMirror()

	m.DeltaApplied("t", shadow.Sample{Key: "status_led", Value: true})
	m.DeltaApplied("t", shadow.Sample{Key: "weird", Value: []int{1}})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.measurement != MeasurementDelta || p.tags["key"] != "status_led" || p.fields["value"] != true {
		t.Errorf("point = %+v", p)
	}
}
