package shadow

import "fmt"

// DefaultCapacity is the registry size used when none is configured.
const DefaultCapacity = 12

// maxKeyLength bounds shadow keys so report sizes stay predictable.
const maxKeyLength = 64

// DeltaHandler is invoked after a remote delta has been written into a
// binding's cell. It runs on the poll goroutine and must not block.
type DeltaHandler interface {
	HandleDelta(b Binding)
}

// DeltaHandlerFunc adapts a function to DeltaHandler.
type DeltaHandlerFunc func(b Binding)

// HandleDelta calls f(b).
func (f DeltaHandlerFunc) HandleDelta(b Binding) {
	f(b)
}

// Binding associates a shadow key with local storage and its behaviour flags.
type Binding struct {
	// Key is the shadow document key, unique within a registry.
	Key string

	// Cell references the application-owned value.
	Cell Cell

	// Reported includes the binding in every outgoing report.
	Reported bool

	// DeltaSubscribed registers the key with the transport for remote updates.
	DeltaSubscribed bool

	// OnDelta is called after a delta for Key is applied. May be nil.
	OnDelta DeltaHandler
}

// Type returns the value type of the binding's cell.
func (b Binding) Type() ValueType {
	return b.Cell.Type()
}

// DeltaSubscriber performs the transport-side registration for delta keys.
type DeltaSubscriber interface {
	SubscribeDelta(key string) error
}

// Registry is a bounded, insertion-ordered table of bindings.
//
// Registration never grows the table beyond its capacity and never
// overwrites an existing key. The registry is confined to the poll
// goroutine and is not safe for concurrent use.
type Registry struct {
	entries    []Binding
	subscriber DeltaSubscriber
}

// NewRegistry creates a registry holding at most capacity bindings.
// A non-positive capacity selects DefaultCapacity. subscriber may be nil, in
// which case delta-subscribed registrations fail with ErrTransportRegistration.
func NewRegistry(capacity int, subscriber DeltaSubscriber) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		entries:    make([]Binding, 0, capacity),
		subscriber: subscriber,
	}
}

// Register adds a reported binding for key backed by cell.
//
// When subscribe is true the key is also registered with the transport. If
// that fails, the binding stays in the local table (it is still reported)
// and the error wraps ErrTransportRegistration.
func (r *Registry) Register(key string, cell Cell, onDelta DeltaHandler, subscribe bool) error {
	return r.RegisterBinding(Binding{
		Key:             key,
		Cell:            cell,
		Reported:        true,
		DeltaSubscribed: subscribe,
		OnDelta:         onDelta,
	})
}

// RegisterBinding adds b to the registry.
//
// Errors are *RegistrationError values wrapping ErrInvalidKey, ErrInvalidCell,
// ErrCapacityExceeded, ErrDuplicateKey or ErrTransportRegistration. Only the
// last one leaves the registry modified.
func (r *Registry) RegisterBinding(b Binding) error {
	if err := validateKey(b.Key); err != nil {
		return &RegistrationError{Key: b.Key, Err: err}
	}
	if !b.Cell.Valid() {
		return &RegistrationError{Key: b.Key, Err: ErrInvalidCell}
	}
	if r.indexOf(b.Key) >= 0 {
		return &RegistrationError{Key: b.Key, Err: ErrDuplicateKey}
	}
	if len(r.entries) == cap(r.entries) {
		return &RegistrationError{Key: b.Key, Err: ErrCapacityExceeded}
	}

	r.entries = append(r.entries, b)

	if !b.DeltaSubscribed {
		return nil
	}
	if r.subscriber == nil {
		return &RegistrationError{Key: b.Key, Err: fmt.Errorf("%w: no subscriber", ErrTransportRegistration)}
	}
	if err := r.subscriber.SubscribeDelta(b.Key); err != nil {
		return &RegistrationError{Key: b.Key, Err: fmt.Errorf("%w: %w", ErrTransportRegistration, err)}
	}
	return nil
}

// RegisterAll registers bindings in order and stops at the first failure.
func (r *Registry) RegisterAll(bindings []Binding) error {
	for _, b := range bindings {
		if err := r.RegisterBinding(b); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the binding registered under key.
func (r *Registry) Find(key string) (Binding, bool) {
	i := r.indexOf(key)
	if i < 0 {
		return Binding{}, false
	}
	return r.entries[i], true
}

// Reported returns the reported bindings in registration order.
func (r *Registry) Reported() []Binding {
	out := make([]Binding, 0, len(r.entries))
	for _, b := range r.entries {
		if b.Reported {
			out = append(out, b)
		}
	}
	return out
}

// HasReported reports whether at least one binding is marked reported.
func (r *Registry) HasReported() bool {
	for _, b := range r.entries {
		if b.Reported {
			return true
		}
	}
	return false
}

// Bindings returns all bindings in registration order.
func (r *Registry) Bindings() []Binding {
	out := make([]Binding, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered bindings.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Cap returns the registry capacity.
func (r *Registry) Cap() int {
	return cap(r.entries)
}

func (r *Registry) indexOf(key string) int {
	for i := range r.entries {
		if r.entries[i].Key == key {
			return i
		}
	}
	return -1
}

// validateKey accepts keys that can be emitted between JSON quotes without escaping.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, maxKeyLength)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return fmt.Errorf("%w: byte 0x%02x at %d", ErrInvalidKey, c, i)
		}
	}
	return nil
}
