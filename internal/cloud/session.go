package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
	"github.com/nerrad567/shadowsync/internal/infrastructure/mqtt"
	"github.com/nerrad567/shadowsync/internal/shadow"
)

// Defaults for the bounded tables.
const (
	DefaultMaxPendingAcks = 10
	DefaultMaxDeltaKeys   = 12

	// eventQueueSize bounds messages buffered between Yield calls.
	eventQueueSize = 64
)

// Broker is the MQTT surface the session needs. *mqtt.Client satisfies it.
type Broker interface {
	Connect(ctx context.Context, host string, port int) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	SetOnReconnecting(callback func())
	Close() error
}

// Logger defines the logging interface used by the Session.
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

// Options configures a Session.
type Options struct {
	ThingName      string
	ClientID       string
	TopicPrefix    string
	QoS            byte
	MaxPendingAcks int
	MaxDeltaKeys   int

	// NewBroker creates the MQTT client during Init. Required.
	NewBroker func() (Broker, error)

	Logger Logger
}

// OptionsFromConfig builds session options backed by a real MQTT client.
func OptionsFromConfig(cfg *config.Config) Options {
	mqttCfg := cfg.MQTT
	return Options{
		ThingName:      cfg.Device.ThingName,
		ClientID:       mqttCfg.Broker.ClientID,
		TopicPrefix:    cfg.Shadow.TopicPrefix,
		QoS:            byte(mqttCfg.QoS),
		MaxPendingAcks: cfg.Shadow.MaxPendingAcks,
		MaxDeltaKeys:   cfg.Shadow.MaxDeltaKeys,
		NewBroker: func() (Broker, error) {
			return mqtt.New(mqttCfg)
		},
	}
}

// connection states, written by paho callbacks and read by Yield.
type linkState int

const (
	linkDown linkState = iota
	linkUp
	linkReconnecting
	linkReconnected
	linkClosed
)

type eventKind int

const (
	eventAccepted eventKind = iota
	eventRejected
	eventDelta
)

type event struct {
	kind    eventKind
	payload []byte
}

type pendingAck struct {
	ack      shadow.AckFunc
	deadline time.Time
}

// Session is a device shadow session over MQTT. It implements shadow.Transport.
//
// Network callbacks only enqueue; acks, deltas and timeouts are dispatched
// from Yield on the caller's goroutine. Apart from the paho callbacks, a
// Session must be used from one goroutine.
type Session struct {
	opts   Options
	topics mqtt.Topics
	logger Logger
	broker Broker

	events chan event

	linkMu sync.Mutex
	link   linkState

	pending     map[string]pendingAck
	deltaKeys   []string
	deltaFuncs  map[string]shadow.DeltaFunc
	deltaActive bool
	lastVersion uint64

	now func() time.Time
}

var _ shadow.Transport = (*Session)(nil)

// NewSession creates an unconnected session.
func NewSession(opts Options) *Session {
	if opts.MaxPendingAcks <= 0 {
		opts.MaxPendingAcks = DefaultMaxPendingAcks
	}
	if opts.MaxDeltaKeys <= 0 {
		opts.MaxDeltaKeys = DefaultMaxDeltaKeys
	}
	if opts.ClientID == "" {
		opts.ClientID = opts.ThingName
	}

	s := &Session{
		opts:       opts,
		topics:     mqtt.Topics{Prefix: opts.TopicPrefix},
		logger:     opts.Logger,
		events:     make(chan event, eventQueueSize),
		pending:    make(map[string]pendingAck),
		deltaFuncs: make(map[string]shadow.DeltaFunc),
		now:        time.Now,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// ThingName returns the shadow this session reports to.
func (s *Session) ThingName() string {
	return s.opts.ThingName
}

// Init creates the MQTT client and installs connection callbacks.
func (s *Session) Init() error {
	if s.opts.ThingName == "" {
		return shadow.NewStatusError(shadow.StatusInvalidParameter, errors.New("cloud: thing name is required"))
	}
	if s.opts.NewBroker == nil {
		return shadow.NewStatusError(shadow.StatusInvalidParameter, errors.New("cloud: no broker factory"))
	}

	broker, err := s.opts.NewBroker()
	if err != nil {
		return shadow.NewStatusError(shadow.StatusInitFailed, err)
	}

	broker.SetOnConnect(s.onConnect)
	broker.SetOnDisconnect(s.onDisconnect)
	broker.SetOnReconnecting(s.onReconnecting)
	s.broker = broker
	return nil
}

// Connect opens the MQTT connection and subscribes to the update response topics.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	if s.broker == nil {
		return shadow.NewStatusError(shadow.StatusInvalidParameter, errors.New("cloud: Init not called"))
	}

	if err := s.broker.Connect(ctx, host, port); err != nil {
		return shadow.NewStatusError(shadow.StatusConnectFailed, err)
	}
	s.setLink(linkUp)

	thing := s.opts.ThingName
	if err := s.subscribe(s.topics.ShadowUpdateAccepted(thing), eventAccepted); err != nil {
		return err
	}
	if err := s.subscribe(s.topics.ShadowUpdateRejected(thing), eventRejected); err != nil {
		return err
	}
	if len(s.deltaKeys) > 0 {
		if err := s.subscribeDelta(); err != nil {
			return err
		}
	}

	s.logger.Info("shadow session connected", "thing", thing, "client_id", s.opts.ClientID)
	return nil
}

// Yield dispatches queued acks and deltas, waiting up to timeout for the
// first event, then expires overdue acks and reports the link status.
func (s *Session) Yield(timeout time.Duration) shadow.Status {
	if s.linkState() == linkClosed {
		return shadow.StatusDisconnected
	}

	timer := time.NewTimer(timeout)
	select {
	case ev := <-s.events:
		timer.Stop()
		s.dispatch(ev)
	case <-timer.C:
	}
	for drained := false; !drained; {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		default:
			drained = true
		}
	}

	s.expireAcks()
	return s.status()
}

// RegisterDelta routes deltas for key to fn. The delta topic is subscribed
// with the first key once the session is connected.
func (s *Session) RegisterDelta(key string, fn shadow.DeltaFunc) error {
	if key == "" || fn == nil {
		return shadow.NewStatusError(shadow.StatusInvalidParameter, errors.New("cloud: key and handler are required"))
	}
	if _, exists := s.deltaFuncs[key]; exists {
		s.deltaFuncs[key] = fn
		return nil
	}
	if len(s.deltaKeys) >= s.opts.MaxDeltaKeys {
		return shadow.NewStatusError(shadow.StatusDeltaTableFull,
			fmt.Errorf("cloud: %d delta keys registered", len(s.deltaKeys)))
	}

	if !s.deltaActive && s.linkState() == linkUp {
		if err := s.subscribeDelta(); err != nil {
			return err
		}
	}

	s.deltaKeys = append(s.deltaKeys, key)
	s.deltaFuncs[key] = fn
	return nil
}

// Update publishes document to the update topic with a fresh client token.
// ack fires from a later Yield with the broker's answer, or AckTimeout once
// timeout has passed.
func (s *Session) Update(document []byte, ack shadow.AckFunc, timeout time.Duration) error {
	if ack == nil {
		return shadow.NewStatusError(shadow.StatusInvalidParameter, errors.New("cloud: ack callback is required"))
	}
	switch s.linkState() {
	case linkClosed, linkDown:
		return shadow.NewStatusError(shadow.StatusDisconnected, mqtt.ErrNotConnected)
	}
	if len(s.pending) >= s.opts.MaxPendingAcks {
		return shadow.NewStatusError(shadow.StatusAckTableFull,
			fmt.Errorf("cloud: %d updates awaiting ack", len(s.pending)))
	}

	token := s.opts.ClientID + "-" + uuid.NewString()
	payload, err := withClientToken(document, token)
	if err != nil {
		return shadow.NewStatusError(shadow.StatusSerializeFailed, err)
	}

	if err := s.broker.Publish(s.topics.ShadowUpdate(s.opts.ThingName), payload, s.opts.QoS, false); err != nil {
		return shadow.NewStatusError(s.publishStatus(err), err)
	}

	s.pending[token] = pendingAck{ack: ack, deadline: s.now().Add(timeout)}
	s.logger.Debug("shadow update published", "client_token", token, "bytes", len(payload))
	return nil
}

// publishStatus classifies a failed publish. A link that dropped after the
// state check, or is still reconnecting, is transient.
func (s *Session) publishStatus(err error) shadow.Status {
	switch link := s.linkState(); {
	case link == linkClosed:
		return shadow.StatusDisconnected
	case link == linkReconnecting, errors.Is(err, mqtt.ErrNotConnected):
		return shadow.StatusReconnecting
	default:
		return shadow.StatusPublishFailed
	}
}

// Disconnect closes the MQTT connection. Outstanding updates are answered
// with AckTimeout. Calling Disconnect again is a no-op.
func (s *Session) Disconnect() error {
	prev := s.linkState()
	if prev == linkClosed {
		return nil
	}
	s.setLink(linkClosed)

	for token, p := range s.pending {
		delete(s.pending, token)
		p.ack(s.opts.ThingName, shadow.ActionUpdate, shadow.AckTimeout, nil)
	}

	if s.broker == nil {
		return nil
	}
	if prev == linkUp || prev == linkReconnected {
		s.unsubscribeAll()
	}
	if err := s.broker.Close(); err != nil {
		return shadow.NewStatusError(shadow.StatusDisconnected, err)
	}
	s.logger.Info("shadow session closed", "thing", s.opts.ThingName)
	return nil
}

// Pending returns the number of updates awaiting an ack.
func (s *Session) Pending() int {
	return len(s.pending)
}

// HealthCheck reports whether the session link is up. It is safe to call
// from any goroutine.
func (s *Session) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("shadow session health check: %w", err)
	}
	switch s.linkState() {
	case linkUp, linkReconnected:
		return nil
	case linkReconnecting:
		return fmt.Errorf("shadow session reconnecting: %w", mqtt.ErrNotConnected)
	default:
		return mqtt.ErrNotConnected
	}
}

// =============================================================================
// Network side
// =============================================================================

func (s *Session) subscribe(topic string, kind eventKind) error {
	err := s.broker.Subscribe(topic, s.opts.QoS, func(_ string, payload []byte) error {
		return s.enqueue(kind, payload)
	})
	if err != nil {
		return shadow.NewStatusError(shadow.StatusSubscribeFailed, err)
	}
	return nil
}

func (s *Session) subscribeDelta() error {
	if err := s.subscribe(s.topics.ShadowUpdateDelta(s.opts.ThingName), eventDelta); err != nil {
		return err
	}
	s.deltaActive = true
	return nil
}

// unsubscribeAll drops the session's topics before close. Failures only
// mean the broker will clean up on its own.
func (s *Session) unsubscribeAll() {
	thing := s.opts.ThingName
	topics := []string{s.topics.ShadowUpdateAccepted(thing), s.topics.ShadowUpdateRejected(thing)}
	if s.deltaActive {
		topics = append(topics, s.topics.ShadowUpdateDelta(thing))
		s.deltaActive = false
	}
	for _, topic := range topics {
		if err := s.broker.Unsubscribe(topic); err != nil {
			s.logger.Debug("shadow unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

// enqueue copies payload onto the event queue without blocking paho.
func (s *Session) enqueue(kind eventKind, payload []byte) error {
	ev := event{kind: kind, payload: append([]byte(nil), payload...)}
	select {
	case s.events <- ev:
		return nil
	default:
		return fmt.Errorf("cloud: event queue full, dropped %d-byte message", len(payload))
	}
}

func (s *Session) onConnect() {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	if s.link == linkReconnecting {
		s.link = linkReconnected
	}
}

func (s *Session) onDisconnect(err error) {
	s.logger.Warn("shadow connection lost", "error", err)
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	if s.link != linkClosed {
		s.link = linkReconnecting
	}
}

func (s *Session) onReconnecting() {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	if s.link != linkClosed {
		s.link = linkReconnecting
	}
}

func (s *Session) setLink(l linkState) {
	s.linkMu.Lock()
	s.link = l
	s.linkMu.Unlock()
}

func (s *Session) linkState() linkState {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	return s.link
}

// status maps the link state to a shadow status. Reconnected is reported
// once, then the link reads as up.
func (s *Session) status() shadow.Status {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	switch s.link {
	case linkUp:
		return shadow.StatusOK
	case linkReconnecting:
		return shadow.StatusReconnecting
	case linkReconnected:
		s.link = linkUp
		return shadow.StatusReconnected
	default:
		return shadow.StatusDisconnected
	}
}

// =============================================================================
// Poll side
// =============================================================================

// responseDoc is the subset of accepted/rejected responses the session reads.
type responseDoc struct {
	ClientToken string `json:"clientToken"`
}

// deltaDoc is the subset of a delta document the session reads.
type deltaDoc struct {
	Version uint64                     `json:"version"`
	State   map[string]json.RawMessage `json:"state"`
}

func (s *Session) dispatch(ev event) {
	switch ev.kind {
	case eventAccepted:
		s.resolve(ev.payload, shadow.AckAccepted)
	case eventRejected:
		s.resolve(ev.payload, shadow.AckRejected)
	case eventDelta:
		s.applyDelta(ev.payload)
	}
}

func (s *Session) resolve(payload []byte, status shadow.AckStatus) {
	var doc responseDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		s.logger.Warn("unparseable shadow response", "error", err)
		return
	}
	p, ok := s.pending[doc.ClientToken]
	if !ok {
		// Responses to other clients' updates are broadcast too.
		return
	}
	delete(s.pending, doc.ClientToken)
	p.ack(s.opts.ThingName, shadow.ActionUpdate, status, payload)
}

func (s *Session) applyDelta(payload []byte) {
	var doc deltaDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		s.logger.Warn("unparseable shadow delta", "error", err)
		return
	}
	if doc.Version != 0 && doc.Version <= s.lastVersion {
		s.logger.Debug("stale shadow delta discarded", "version", doc.Version, "last", s.lastVersion)
		return
	}
	if doc.Version != 0 {
		s.lastVersion = doc.Version
	}

	for _, key := range s.deltaKeys {
		raw, ok := doc.State[key]
		if !ok {
			continue
		}
		s.deltaFuncs[key](key, raw)
	}
}

func (s *Session) expireAcks() {
	now := s.now()
	for token, p := range s.pending {
		if now.Before(p.deadline) {
			continue
		}
		delete(s.pending, token)
		s.logger.Debug("shadow update ack timed out", "client_token", token)
		p.ack(s.opts.ThingName, shadow.ActionUpdate, shadow.AckTimeout, nil)
	}
}

// withClientToken appends "clientToken" to the top-level object in doc.
func withClientToken(doc []byte, token string) ([]byte, error) {
	n := len(doc)
	if n < 2 || doc[0] != '{' || doc[n-1] != '}' {
		return nil, errors.New("cloud: update document is not a JSON object")
	}

	out := make([]byte, 0, n+len(token)+18)
	out = append(out, doc[:n-1]...)
	if n > 2 {
		out = append(out, ',')
	}
	out = append(out, `"clientToken":"`...)
	out = append(out, token...)
	out = append(out, `"}`...)
	return out, nil
}
