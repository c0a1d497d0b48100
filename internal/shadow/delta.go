package shadow

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// ApplyDelta writes a remote value into the binding registered under key and
// then invokes its handler.
//
// raw is the JSON literal taken from the delta document (for example 255,
// true or 21.5). Unknown keys are ignored and return nil. A value that does
// not decode as the binding's type returns ErrInvalidDeltaValue and leaves
// the cell unchanged; the handler is not called.
func ApplyDelta(reg *Registry, key string, raw []byte) error {
	_, _, err := applyDelta(reg, key, raw)
	return err
}

// applyDelta is ApplyDelta that also reports which binding, if any, was updated.
func applyDelta(reg *Registry, key string, raw []byte) (Binding, bool, error) {
	b, ok := reg.Find(key)
	if !ok {
		return Binding{}, false, nil
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return b, false, fmt.Errorf("%w: %q: empty value", ErrInvalidDeltaValue, key)
	}

	switch b.Type() {
	case TypeUint32:
		var v uint32
		if err := json.Unmarshal(raw, &v); err != nil {
			return b, false, fmt.Errorf("%w: %q as uint32: %w", ErrInvalidDeltaValue, key, err)
		}
		b.Cell.SetUint32(v)
	case TypeBool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return b, false, fmt.Errorf("%w: %q as bool: %w", ErrInvalidDeltaValue, key, err)
		}
		b.Cell.SetBool(v)
	case TypeFloat32:
		var v float32
		if err := json.Unmarshal(raw, &v); err != nil {
			return b, false, fmt.Errorf("%w: %q as float32: %w", ErrInvalidDeltaValue, key, err)
		}
		b.Cell.SetFloat32(v)
	default:
		return b, false, fmt.Errorf("%w: %q", ErrInvalidCell, key)
	}

	if b.OnDelta != nil {
		b.OnDelta.HandleDelta(b)
	}
	return b, true, nil
}
