package shadow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
)

// Engine states.
const (
	StateUninitialized = "uninitialized"
	StateConnecting    = "connecting"
	StateRunning       = "running"
	StateDraining      = "draining"
	StateTerminated    = "terminated"
)

// Engine events.
const (
	eventConnect       = "connect"
	eventConnected     = "connected"
	eventConnectFailed = "connect_failed"
	eventFail          = "fail"
	eventStop          = "stop"
	eventDrained       = "drained"
	eventAbandon       = "abandon"
)

// Default timings for the poll loop.
const (
	DefaultPollTimeout     = 200 * time.Millisecond
	DefaultCycleInterval   = time.Second
	DefaultNotReadyBackoff = time.Second
	DefaultAckTimeout      = 4 * time.Second
)

// Logger defines the logging interface used by the Engine.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sample is a key and the value its cell held at the time of an event.
type Sample struct {
	Key   string
	Value any
}

// Recorder observes engine activity. Methods run on the poll goroutine and
// must not block; samples are copies and may be handed to other goroutines.
type Recorder interface {
	ReportSubmitted(thing string, samples []Sample)
	AckReceived(thing string, status AckStatus)
	DeltaApplied(thing string, sample Sample)
}

// RefreshFunc updates bound cells from local hardware once per cycle.
type RefreshFunc func(ctx context.Context)

// Config holds the engine tunables.
type Config struct {
	Capacity         int
	ReportBufferSize int
	PollTimeout      time.Duration
	CycleInterval    time.Duration
	NotReadyBackoff  time.Duration
	AckTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.ReportBufferSize <= 0 {
		c.ReportBufferSize = DefaultReportBufferSize
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.CycleInterval <= 0 {
		c.CycleInterval = DefaultCycleInterval
	}
	if c.NotReadyBackoff <= 0 {
		c.NotReadyBackoff = DefaultNotReadyBackoff
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	return c
}

// Options configures a new Engine.
type Options struct {
	// Config holds timings and sizes. Zero values select the defaults.
	Config Config

	// Transport is the shadow session. Required.
	Transport Transport

	// Logger receives engine logs. Defaults to a no-op logger.
	Logger Logger

	// Recorder observes reports, acks and deltas. Optional.
	Recorder Recorder
}

// Snapshot is a point-in-time view of the engine for other goroutines.
type Snapshot struct {
	Thing      string    `json:"thing"`
	State      string    `json:"state"`
	Status     string    `json:"status"`
	Health     string    `json:"health"`
	Document   []byte    `json:"-"`
	ReportedAt time.Time `json:"reported_at"`
	LastAck    string    `json:"last_ack,omitempty"`
	Reports    uint64    `json:"reports"`
	Deltas     uint64    `json:"deltas"`
}

// Engine drives one shadow session: it owns the binding registry, polls the
// transport, classifies its health, and submits reports.
//
// Apart from Snapshot and State, methods must be called from a single
// goroutine (the poll goroutine).
type Engine struct {
	cfg       Config
	transport Transport
	registry  *Registry
	machine   *fsm.FSM
	logger    Logger
	recorder  Recorder

	lastStatus    Status
	reportPending bool
	buf           []byte

	reports uint64
	deltas  uint64
	lastAck string

	snapshot     atomic.Pointer[Snapshot]
	shutdownOnce sync.Once

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine in the uninitialized state.
//
// Parameters:
//   - opts: Engine options; Transport must be set
//
// Returns:
//   - *Engine: Engine ready for Register and Connect
//   - error: If opts.Transport is nil
func NewEngine(opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, errors.New("shadow: transport is required")
	}
	cfg := opts.Config.withDefaults()

	e := &Engine{
		cfg:       cfg,
		transport: opts.Transport,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		buf:       make([]byte, 0, cfg.ReportBufferSize),
		sleep:     sleepContext,
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	e.registry = NewRegistry(cfg.Capacity, e)

	e.machine = fsm.NewFSM(
		StateUninitialized,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateUninitialized}, Dst: StateConnecting},
			{Name: eventConnected, Src: []string{StateConnecting}, Dst: StateRunning},
			{Name: eventConnectFailed, Src: []string{StateConnecting}, Dst: StateTerminated},
			{Name: eventFail, Src: []string{StateRunning}, Dst: StateDraining},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateDraining},
			{Name: eventDrained, Src: []string{StateDraining}, Dst: StateTerminated},
			{Name: eventAbandon, Src: []string{StateUninitialized, StateConnecting}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				metricTransitions.WithLabelValues(ev.Src, ev.Dst).Inc()
				e.logger.Debug("shadow engine state changed", "from", ev.Src, "to", ev.Dst, "event", ev.Event)
			},
		},
	)
	e.publish()

	return e, nil
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Registry returns the engine's binding table.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Register adds a reported binding. See Registry.Register.
func (e *Engine) Register(key string, cell Cell, onDelta DeltaHandler, subscribe bool) error {
	return e.registry.Register(key, cell, onDelta, subscribe)
}

// RegisterAll adds bindings in order and stops at the first failure.
// Bindings registered before the failure stay in place.
func (e *Engine) RegisterAll(bindings []Binding) error {
	return e.registry.RegisterAll(bindings)
}

// SubscribeDelta registers key with the transport so remote deltas for it are
// applied to the registry. It implements DeltaSubscriber.
func (e *Engine) SubscribeDelta(key string) error {
	if err := e.transport.RegisterDelta(key, e.handleDelta); err != nil {
		e.setStatus(StatusOf(err))
		e.logger.Error("delta registration failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Connect initialises the transport and opens the session.
//
// On success the engine is Running. On failure it is Terminated and the
// returned error wraps ErrConnectFailed.
func (e *Engine) Connect(ctx context.Context, host string, port int) error {
	if err := e.machine.Event(ctx, eventConnect); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	defer e.publish()

	e.logger.Info("shadow init")
	if err := e.transport.Init(); err != nil {
		e.setStatus(StatusOf(err))
		_ = e.machine.Event(ctx, eventConnectFailed)
		e.logger.Error("shadow init failed", "error", err)
		return fmt.Errorf("%w: init: %w", ErrConnectFailed, err)
	}

	e.logger.Info("shadow connect", "host", host, "port", port)
	if err := e.transport.Connect(ctx, host, port); err != nil {
		e.setStatus(StatusOf(err))
		_ = e.machine.Event(ctx, eventConnectFailed)
		e.logger.Error("shadow connect failed", "host", host, "port", port, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	e.setStatus(StatusOK)
	_ = e.machine.Event(ctx, eventConnected)
	e.logger.Info("shadow connected", "thing", e.transport.ThingName())
	return nil
}

// Poll lets the transport process network events for up to the configured
// poll timeout, then classifies the resulting status.
//
// It returns true when the caller should skip the rest of this cycle: the
// session is reconnecting, has failed, or the engine is not running.
// A Fatal status moves the engine to Draining.
func (e *Engine) Poll() bool {
	if !e.machine.Is(StateRunning) {
		return true
	}

	status := e.transport.Yield(e.cfg.PollTimeout)
	e.setStatus(status)

	switch Classify(status) {
	case HealthNotReady:
		metricCycles.WithLabelValues(cycleNotReady).Inc()
		e.logger.Debug("shadow reconnecting, skipping cycle")
		return true
	case HealthFatal:
		e.logger.Error("shadow transport failed", "status", status)
		_ = e.machine.Event(context.Background(), eventFail)
		e.publish()
		return true
	}

	if status == StatusReconnected {
		e.logger.Info("shadow reconnected")
	}
	return false
}

// IsAlive reports whether the loop should keep going: the engine is Running
// and the last transport status is not Fatal.
func (e *Engine) IsAlive() bool {
	return e.machine.Is(StateRunning) && Classify(e.lastStatus) != HealthFatal
}

// LastStatus returns the most recent transport status.
func (e *Engine) LastStatus() Status {
	return e.lastStatus
}

// SubmitReport builds a report from the reported bindings and hands it to the
// transport.
//
// The call is a no-op (nil error) when nothing is reported or when a previous
// report is still waiting for its ack. Encoding failures are returned without
// touching the transport status. A transport failure records its status,
// which the next IsAlive check will classify; a send refused while the
// session reconnects leaves the engine alive.
//
// ack may be nil, in which case the outcome is logged.
func (e *Engine) SubmitReport(ack AckFunc) error {
	if !e.machine.Is(StateRunning) {
		return ErrNotRunning
	}
	if !e.registry.HasReported() {
		metricCycles.WithLabelValues(cycleEmpty).Inc()
		return nil
	}
	if e.reportPending {
		metricCycles.WithLabelValues(cyclePending).Inc()
		e.logger.Debug("previous report awaiting ack, skipping")
		return nil
	}

	doc, err := BuildReport(e.buf, e.registry)
	if errors.Is(err, ErrNoReported) {
		metricCycles.WithLabelValues(cycleEmpty).Inc()
		return nil
	}
	if err != nil {
		metricCycles.WithLabelValues(cycleBuildError).Inc()
		e.logger.Warn("report build failed, skipping cycle", "error", err)
		return err
	}
	e.buf = doc[:0]

	thing := e.transport.ThingName()
	done := func(thing string, action Action, status AckStatus, document []byte) {
		e.reportPending = false
		e.lastAck = status.String()
		metricAcks.WithLabelValues(status.String()).Inc()
		if e.recorder != nil {
			e.recorder.AckReceived(thing, status)
		}
		if ack != nil {
			ack(thing, action, status, document)
		} else {
			e.logAck(thing, action, status)
		}
		e.publish()
	}

	// Set before Update so an ack delivered synchronously still clears it.
	e.reportPending = true
	if err := e.transport.Update(doc, done, e.cfg.AckTimeout); err != nil {
		e.reportPending = false
		status := StatusOf(err)
		e.setStatus(status)
		if Classify(status) == HealthNotReady {
			metricCycles.WithLabelValues(cycleNotReady).Inc()
			e.logger.Warn("shadow reconnecting, report not sent", "error", err)
		} else {
			metricCycles.WithLabelValues(cycleSendError).Inc()
			e.logger.Error("shadow update failed", "error", err)
		}
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	e.reports++
	metricCycles.WithLabelValues(cycleReported).Inc()
	metricReportBytes.Set(float64(len(doc)))
	e.logger.Info("shadow update sent", "thing", thing, "bytes", len(doc))

	if e.recorder != nil {
		e.recorder.ReportSubmitted(thing, samples(e.registry.Reported()))
	}
	e.publishReport(doc)
	return nil
}

// Shutdown drains the engine and disconnects the transport.
//
// A non-OK last status is logged as the error that ended the session. Only
// the first call has any effect.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		ctx := context.Background()
		defer e.publish()

		if e.lastStatus != StatusOK {
			e.logger.Error("shadow session ended with error", "status", e.lastStatus)
		}

		switch e.machine.Current() {
		case StateUninitialized:
			_ = e.machine.Event(ctx, eventAbandon)
			return
		case StateRunning:
			_ = e.machine.Event(ctx, eventStop)
		}

		e.logger.Info("shadow disconnecting")
		if err := e.transport.Disconnect(); err != nil {
			e.logger.Error("shadow disconnect failed", "error", err)
		}

		if e.machine.Is(StateDraining) {
			_ = e.machine.Event(ctx, eventDrained)
		}
		e.logger.Info("shadow engine stopped")
	})
}

// Run drives the poll loop until ctx is cancelled or the session fails, then
// shuts the engine down.
//
// Each cycle polls the transport, runs refresh hooks, submits a report and
// sleeps for the cycle interval. Cycles where Poll asks to skip sleep for the
// not-ready backoff instead. Run returns nil on cancellation and an error
// carrying the last status when the session failed.
func (e *Engine) Run(ctx context.Context, hooks ...RefreshFunc) error {
	if !e.machine.Is(StateRunning) {
		return ErrNotRunning
	}

	for e.IsAlive() {
		if ctx.Err() != nil {
			e.logger.Info("shutdown requested")
			break
		}

		if e.Poll() {
			if !e.IsAlive() {
				break
			}
			if err := e.sleep(ctx, e.cfg.NotReadyBackoff); err != nil {
				break
			}
			continue
		}

		for _, refresh := range hooks {
			refresh(ctx)
		}
		_ = e.SubmitReport(nil)

		if err := e.sleep(ctx, e.cfg.CycleInterval); err != nil {
			break
		}
	}

	status := e.lastStatus
	failed := Classify(status) == HealthFatal
	e.Shutdown()

	if failed {
		return fmt.Errorf("shadow: session terminated: %w", NewStatusError(status, nil))
	}
	return nil
}

// State returns the current engine state. Safe for concurrent use.
func (e *Engine) State() string {
	return e.machine.Current()
}

// Snapshot returns the latest published view of the engine.
// Safe for concurrent use.
func (e *Engine) Snapshot() Snapshot {
	if s := e.snapshot.Load(); s != nil {
		return *s
	}
	return Snapshot{State: StateUninitialized}
}

func (e *Engine) handleDelta(key string, raw []byte) {
	b, applied, err := applyDelta(e.registry, key, raw)
	if err != nil {
		metricDeltas.WithLabelValues("invalid").Inc()
		e.logger.Warn("delta rejected", "key", key, "error", err)
		return
	}
	if !applied {
		metricDeltas.WithLabelValues("ignored").Inc()
		e.logger.Debug("delta for unknown key ignored", "key", key)
		return
	}

	e.deltas++
	metricDeltas.WithLabelValues("applied").Inc()
	sample := Sample{Key: b.Key, Value: b.Cell.Value()}
	e.logger.Info("delta applied", "key", sample.Key, "value", sample.Value)
	if e.recorder != nil {
		e.recorder.DeltaApplied(e.transport.ThingName(), sample)
	}
	e.publish()
}

func (e *Engine) logAck(thing string, action Action, status AckStatus) {
	switch status {
	case AckAccepted:
		e.logger.Info("shadow update accepted", "thing", thing, "action", action)
	case AckRejected:
		e.logger.Warn("shadow update rejected", "thing", thing, "action", action)
	default:
		e.logger.Warn("shadow update timed out", "thing", thing, "action", action)
	}
}

func (e *Engine) setStatus(s Status) {
	e.lastStatus = s
	metricTransportStatus.Set(float64(s))
}

// publish stores a fresh snapshot, keeping the last report document.
func (e *Engine) publish() {
	var doc []byte
	var at time.Time
	if prev := e.snapshot.Load(); prev != nil {
		doc, at = prev.Document, prev.ReportedAt
	}
	e.store(doc, at)
}

func (e *Engine) publishReport(doc []byte) {
	e.store(append([]byte(nil), doc...), time.Now())
}

func (e *Engine) store(doc []byte, at time.Time) {
	e.snapshot.Store(&Snapshot{
		Thing:      e.transport.ThingName(),
		State:      e.machine.Current(),
		Status:     e.lastStatus.String(),
		Health:     Classify(e.lastStatus).String(),
		Document:   doc,
		ReportedAt: at,
		LastAck:    e.lastAck,
		Reports:    e.reports,
		Deltas:     e.deltas,
	})
}

func samples(bindings []Binding) []Sample {
	out := make([]Sample, len(bindings))
	for i, b := range bindings {
		out[i] = Sample{Key: b.Key, Value: b.Cell.Value()}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
