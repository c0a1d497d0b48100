package shadow

import (
	"errors"
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestBuildReport_TwoBindings(t *testing.T) {
	rgb := uint32(1337)
	led := true

	reg := NewRegistry(0, nil)
	mustRegister(t, reg, "rgb_light", Uint32Cell(&rgb))
	mustRegister(t, reg, "status_led", BoolCell(&led))

	got, err := BuildReport(make([]byte, 0, DefaultReportBufferSize), reg)
	if err != nil {
		t.Fatalf("BuildReport() error: %v", err)
	}

	want := `{"state":{"reported":{"rgb_light":1337,"status_led":true}}}`
	if string(got) != want {
		t.Errorf("BuildReport() = %s, want %s", got, want)
	}
}

func TestBuildReport_DeviceLayout(t *testing.T) {
	state := struct {
		rgb, ambient     uint32
		led, quake       bool
		temp, ax, ay, az float32
	}{
		rgb: 0xFF0000, ambient: 2048,
		temp: 23.5, ax: 0.25, ay: -1.5, az: 0,
	}

	reg := NewRegistry(0, nil)
	mustRegister(t, reg, "rgb_light", Uint32Cell(&state.rgb))
	mustRegister(t, reg, "ambient_light", Uint32Cell(&state.ambient))
	mustRegister(t, reg, "status_led", BoolCell(&state.led))
	mustRegister(t, reg, "ambient_temp", Float32Cell(&state.temp))
	mustRegister(t, reg, "acc_x", Float32Cell(&state.ax))
	mustRegister(t, reg, "acc_y", Float32Cell(&state.ay))
	mustRegister(t, reg, "acc_z", Float32Cell(&state.az))
	mustRegister(t, reg, "earthquake_alarm", BoolCell(&state.quake))

	got, err := BuildReport(make([]byte, 0, DefaultReportBufferSize), reg)
	if err != nil {
		t.Fatalf("BuildReport() error: %v", err)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "device_report", got)
}

func TestBuildReport_ExcludesUnreported(t *testing.T) {
	var rgb, local uint32 = 7, 9

	reg := NewRegistry(0, nil)
	mustRegister(t, reg, "rgb_light", Uint32Cell(&rgb))
	if err := reg.RegisterBinding(Binding{Key: "local", Cell: Uint32Cell(&local)}); err != nil {
		t.Fatalf("RegisterBinding() error: %v", err)
	}

	got, err := BuildReport(make([]byte, 0, 64), reg)
	if err != nil {
		t.Fatalf("BuildReport() error: %v", err)
	}
	if want := `{"state":{"reported":{"rgb_light":7}}}`; string(got) != want {
		t.Errorf("BuildReport() = %s, want %s", got, want)
	}
}

func TestBuildReport_Overflow(t *testing.T) {
	rgb := uint32(1337)
	reg := NewRegistry(0, nil)
	mustRegister(t, reg, "rgb_light", Uint32Cell(&rgb))

	buf := make([]byte, 0, 16)
	got, err := BuildReport(buf, reg)
	if !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("BuildReport() error = %v, want ErrEncodingOverflow", err)
	}
	if len(got) != 0 {
		t.Errorf("overflow should write nothing, got %q", got)
	}
}

func TestBuildReport_ExactFit(t *testing.T) {
	rgb := uint32(1)
	reg := NewRegistry(0, nil)
	mustRegister(t, reg, "a", Uint32Cell(&rgb))

	want := `{"state":{"reported":{"a":1}}}`
	got, err := BuildReport(make([]byte, 0, len(want)), reg)
	if err != nil {
		t.Fatalf("BuildReport() error: %v", err)
	}
	if string(got) != want {
		t.Errorf("BuildReport() = %s, want %s", got, want)
	}
}

func TestBuildReport_NoReported(t *testing.T) {
	reg := NewRegistry(0, nil)

	_, err := BuildReport(make([]byte, 0, 64), reg)
	if !errors.Is(err, ErrNoReported) {
		t.Errorf("BuildReport() error = %v, want ErrNoReported", err)
	}
}

func TestBuildReport_NonFiniteFloat(t *testing.T) {
	for _, v := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		temp := v
		reg := NewRegistry(0, nil)
		mustRegister(t, reg, "ambient_temp", Float32Cell(&temp))

		_, err := BuildReport(make([]byte, 0, 64), reg)
		if !errors.Is(err, ErrEncodingInvalid) {
			t.Errorf("BuildReport(%v) error = %v, want ErrEncodingInvalid", v, err)
		}
	}
}

func TestBuildReport_ReusesBuffer(t *testing.T) {
	rgb := uint32(1)
	reg := NewRegistry(0, nil)
	mustRegister(t, reg, "rgb_light", Uint32Cell(&rgb))

	buf := make([]byte, 0, 64)
	first, err := BuildReport(buf, reg)
	if err != nil {
		t.Fatalf("BuildReport() error: %v", err)
	}

	rgb = 2
	second, err := BuildReport(first, reg)
	if err != nil {
		t.Fatalf("BuildReport() error: %v", err)
	}
	if want := `{"state":{"reported":{"rgb_light":2}}}`; string(second) != want {
		t.Errorf("second build = %s, want %s", second, want)
	}
	if cap(second) != cap(buf) || &second[0] != &buf[:1][0] {
		t.Error("buffer should be reused, not reallocated")
	}
}

func TestBuildReport_FloatFormatting(t *testing.T) {
	tests := []struct {
		value float32
		want  string
	}{
		{0, `{"state":{"reported":{"t":0.0}}}`},
		{21, `{"state":{"reported":{"t":21.0}}}`},
		{0.1, `{"state":{"reported":{"t":0.1}}}`},
		{-3.25, `{"state":{"reported":{"t":-3.25}}}`},
	}

	for _, tt := range tests {
		v := tt.value
		reg := NewRegistry(0, nil)
		mustRegister(t, reg, "t", Float32Cell(&v))

		got, err := BuildReport(make([]byte, 0, 64), reg)
		if err != nil {
			t.Fatalf("BuildReport(%v) error: %v", tt.value, err)
		}
		if string(got) != tt.want {
			t.Errorf("BuildReport(%v) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func mustRegister(t *testing.T, reg *Registry, key string, cell Cell) {
	t.Helper()
	if err := reg.Register(key, cell, nil, false); err != nil {
		t.Fatalf("Register(%s) error: %v", key, err)
	}
}
