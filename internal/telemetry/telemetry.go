// Package telemetry mirrors shadow engine activity to a time-series store.
package telemetry

import (
	"time"

	"github.com/nerrad567/shadowsync/internal/shadow"
)

// Measurement names.
const (
	MeasurementReport = "shadow_report"
	MeasurementAck    = "shadow_ack"
	MeasurementDelta  = "shadow_delta"
)

// PointWriter queues a point for asynchronous delivery.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// Mirror implements shadow.Recorder by writing one point per event:
//
//	shadow_report,thing=<t> <key>=<value>,...
//	shadow_ack,thing=<t>,status=accepted count=1i
//	shadow_delta,thing=<t>,key=<k> value=<value>
type Mirror struct {
	w   PointWriter
	now func() time.Time
}

var _ shadow.Recorder = (*Mirror)(nil)

// NewMirror creates a mirror writing through w.
func NewMirror(w PointWriter) *Mirror {
	return &Mirror{w: w, now: time.Now}
}

// ReportSubmitted writes every reported value as a field of one point.
func (m *Mirror) ReportSubmitted(thing string, samples []shadow.Sample) {
	fields := make(map[string]any, len(samples))
	for _, s := range samples {
		if v, ok := fieldValue(s.Value); ok {
			fields[s.Key] = v
		}
	}
	m.w.WritePointWithTime(MeasurementReport, map[string]string{"thing": thing}, fields, m.now())
}

// AckReceived writes a counter point tagged with the outcome.
func (m *Mirror) AckReceived(thing string, status shadow.AckStatus) {
	m.w.WritePointWithTime(MeasurementAck,
		map[string]string{"thing": thing, "status": status.String()},
		map[string]any{"count": int64(1)},
		m.now())
}

// DeltaApplied writes the new value of a single key.
func (m *Mirror) DeltaApplied(thing string, sample shadow.Sample) {
	v, ok := fieldValue(sample.Value)
	if !ok {
		return
	}
	m.w.WritePointWithTime(MeasurementDelta,
		map[string]string{"thing": thing, "key": sample.Key},
		map[string]any{"value": v},
		m.now())
}

// fieldValue converts a cell value to an InfluxDB field type.
func fieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case uint32:
		return int64(x), true
	case float32:
		return float64(x), true
	case bool:
		return x, true
	default:
		return nil, false
	}
}
