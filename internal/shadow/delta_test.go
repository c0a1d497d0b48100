package shadow

import (
	"errors"
	"testing"
)

func TestApplyDelta_Uint32InvokesHandlerOnce(t *testing.T) {
	var rgb uint32
	var observed []uint32

	reg := NewRegistry(0, &mockSubscriber{})
	handler := DeltaHandlerFunc(func(b Binding) {
		observed = append(observed, b.Cell.Uint32())
	})
	if err := reg.Register("rgb_light", Uint32Cell(&rgb), handler, true); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if err := ApplyDelta(reg, "rgb_light", []byte("255")); err != nil {
		t.Fatalf("ApplyDelta() error: %v", err)
	}

	if rgb != 255 {
		t.Errorf("rgb = %d, want 255", rgb)
	}
	if len(observed) != 1 || observed[0] != 255 {
		t.Errorf("handler observed %v, want [255]", observed)
	}
}

func TestApplyDelta_UnknownKeyIsNoop(t *testing.T) {
	var rgb uint32 = 3
	called := false

	reg := NewRegistry(0, &mockSubscriber{})
	handler := DeltaHandlerFunc(func(Binding) { called = true })
	if err := reg.Register("rgb_light", Uint32Cell(&rgb), handler, true); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if err := ApplyDelta(reg, "unknown", []byte("1")); err != nil {
		t.Errorf("ApplyDelta(unknown) error = %v, want nil", err)
	}
	if called {
		t.Error("handler should not be called for unknown key")
	}
	if rgb != 3 {
		t.Errorf("rgb = %d, want unchanged 3", rgb)
	}
}

func TestApplyDelta_Types(t *testing.T) {
	var led bool
	var temp float32

	reg := NewRegistry(0, nil)
	mustRegister(t, reg, "status_led", BoolCell(&led))
	mustRegister(t, reg, "ambient_temp", Float32Cell(&temp))

	if err := ApplyDelta(reg, "status_led", []byte(" true ")); err != nil {
		t.Fatalf("ApplyDelta(bool) error: %v", err)
	}
	if !led {
		t.Error("status_led = false, want true")
	}

	if err := ApplyDelta(reg, "ambient_temp", []byte("21.5")); err != nil {
		t.Fatalf("ApplyDelta(float) error: %v", err)
	}
	if temp != 21.5 {
		t.Errorf("ambient_temp = %v, want 21.5", temp)
	}
}

func TestApplyDelta_InvalidValue(t *testing.T) {
	var rgb uint32 = 10
	called := false

	reg := NewRegistry(0, &mockSubscriber{})
	handler := DeltaHandlerFunc(func(Binding) { called = true })
	if err := reg.Register("rgb_light", Uint32Cell(&rgb), handler, true); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"string", `"blue"`},
		{"bool", `true`},
		{"null", `null`},
		{"empty", ``},
		{"object", `{"r":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ApplyDelta(reg, "rgb_light", []byte(tt.raw))
			if !errors.Is(err, ErrInvalidDeltaValue) {
				t.Errorf("ApplyDelta(%s) error = %v, want ErrInvalidDeltaValue", tt.raw, err)
			}
		})
	}

	if rgb != 10 {
		t.Errorf("rgb = %d, want unchanged 10", rgb)
	}
	if called {
		t.Error("handler should not run for invalid values")
	}
}
