package shadow

// Recorders fans every event out to each recorder in order. Nil entries are
// skipped.
type Recorders []Recorder

var _ Recorder = Recorders(nil)

// ReportSubmitted implements Recorder.
func (rs Recorders) ReportSubmitted(thing string, samples []Sample) {
	for _, r := range rs {
		if r != nil {
			r.ReportSubmitted(thing, samples)
		}
	}
}

// AckReceived implements Recorder.
func (rs Recorders) AckReceived(thing string, status AckStatus) {
	for _, r := range rs {
		if r != nil {
			r.AckReceived(thing, status)
		}
	}
}

// DeltaApplied implements Recorder.
func (rs Recorders) DeltaApplied(thing string, sample Sample) {
	for _, r := range rs {
		if r != nil {
			r.DeltaApplied(thing, sample)
		}
	}
}
