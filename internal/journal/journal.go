package journal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/shadowsync/internal/shadow"
)

const (
	// queueSize bounds records waiting for the writer.
	queueSize = 256

	// writeTimeout bounds a single insert.
	writeTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the Journal.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Restorer receives journalled values at startup. *device.State satisfies it.
type Restorer interface {
	Restore(key string, value any) error
}

type recordKind int

const (
	recordDelta recordKind = iota
	recordAck
)

type record struct {
	kind   recordKind
	thing  string
	sample shadow.Sample
	status shadow.AckStatus
	at     time.Time
}

// Journal writes engine activity to a Repository in the background.
type Journal struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	records chan record

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped atomic.Int64
}

var _ shadow.Recorder = (*Journal)(nil)

// New creates a journal over repo. Call Start before recording.
func New(repo Repository) *Journal {
	return &Journal{
		repo:    repo,
		logger:  noopLogger{},
		now:     time.Now,
		records: make(chan record, queueSize),
	}
}

// SetLogger sets the logger for the journal.
func (j *Journal) SetLogger(logger Logger) {
	j.logger = logger
}

// Repository returns the underlying repository for queries.
func (j *Journal) Repository() Repository {
	return j.repo
}

// Start launches the writer goroutine. Records queued before Start are kept.
// Cancelling ctx does not stop the writer; Close does, after draining.
func (j *Journal) Start(ctx context.Context) {
	j.startOnce.Do(func() {
		j.wg.Add(1)
		go j.run(context.WithoutCancel(ctx))
	})
}

// Close stops accepting records, waits for queued ones to be written and
// returns. It is safe to call more than once.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.records)
		j.mu.Unlock()
	})
	j.wg.Wait()

	if dropped := j.dropped.Load(); dropped > 0 {
		j.logger.Warn("journal dropped records", "count", dropped)
	}
	return nil
}

// ReportSubmitted implements shadow.Recorder. Reports are mirrored to
// telemetry, not the journal.
func (j *Journal) ReportSubmitted(string, []shadow.Sample) {}

// AckReceived implements shadow.Recorder.
func (j *Journal) AckReceived(thing string, status shadow.AckStatus) {
	j.enqueue(record{kind: recordAck, thing: thing, status: status, at: j.now()})
}

// DeltaApplied implements shadow.Recorder.
func (j *Journal) DeltaApplied(thing string, sample shadow.Sample) {
	j.enqueue(record{kind: recordDelta, thing: thing, sample: sample, at: j.now()})
}

// Restore loads the last journalled value of every key for thing into dst.
// Keys dst does not accept are logged and skipped.
//
// Returns:
//   - int: Number of values restored
//   - error: If the journal could not be read
func (j *Journal) Restore(ctx context.Context, thing string, dst Restorer) (int, error) {
	entries, err := j.repo.LatestValues(ctx, thing)
	if err != nil {
		return 0, fmt.Errorf("reading journal: %w", err)
	}

	restored := 0
	for _, e := range entries {
		var v any
		if err := json.Unmarshal(e.Value, &v); err != nil {
			j.logger.Warn("skipping unreadable journal value", "key", e.Key, "error", err)
			continue
		}
		if err := dst.Restore(e.Key, v); err != nil {
			j.logger.Warn("skipping journal value", "key", e.Key, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

func (j *Journal) enqueue(r record) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.records <- r:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) run(ctx context.Context) {
	defer j.wg.Done()
	for r := range j.records {
		j.write(ctx, r)
	}
}

func (j *Journal) write(ctx context.Context, r record) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var err error
	switch r.kind {
	case recordDelta:
		err = j.repo.RecordDelta(ctx, r.thing, r.sample, r.at)
	case recordAck:
		err = j.repo.RecordAck(ctx, r.thing, r.status, r.at)
	}
	if err != nil {
		j.logger.Error("journal write failed", "error", err)
	}
}
