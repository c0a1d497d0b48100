package hal

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// =============================================================================
// TMP006
// =============================================================================

func TestTMP006_ReadTemperature(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want float64
	}{
		{"zero", []byte{0x00, 0x00}, 0},
		{"room temperature", []byte{0x0B, 0xC0}, 23.5},
		{"one lsb", []byte{0x00, 0x04}, 1.0 / 32},
		{"low bits ignored", []byte{0x0B, 0xC3}, 23.5},
		{"negative", []byte{0xFD, 0x80}, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewSimI2C()
			bus.SetRegister(TMP006Address, tmp006RegTemperature, tt.raw)

			got, err := NewTMP006(bus, 0).ReadTemperature()
			if err != nil {
				t.Fatalf("ReadTemperature() error = %v", err)
			}
			if !approxEqual(got, tt.want) {
				t.Errorf("ReadTemperature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTMP006_EncodeRoundTrip(t *testing.T) {
	for _, c := range []float64{-40, -0.5, 0, 21.25, 85} {
		bus := NewSimI2C()
		bus.SetRegister(0x44, tmp006RegTemperature, encodeTMP006(c))
		got, err := NewTMP006(bus, 0x44).ReadTemperature()
		if err != nil {
			t.Fatalf("ReadTemperature() error = %v", err)
		}
		if !approxEqual(got, c) {
			t.Errorf("round trip %v = %v", c, got)
		}
	}
}

func TestTMP006_BusError(t *testing.T) {
	bus := NewSimI2C()
	if _, err := NewTMP006(bus, 0).ReadTemperature(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("error = %v, want ErrNoDevice", err)
	}

	bus.SetRegister(TMP006Address, tmp006RegTemperature, []byte{0x01})
	if _, err := NewTMP006(bus, 0).ReadTemperature(); !errors.Is(err, ErrShortRead) {
		t.Errorf("error = %v, want ErrShortRead", err)
	}
}

// =============================================================================
// BMA222
// =============================================================================

func TestBMA222_ReadAcceleration(t *testing.T) {
	bus := NewSimI2C()
	// LSB bytes are ignored; each MSB is a signed 8-bit sample.
	bus.SetRegister(BMA222Address, bma222RegData, []byte{0xAA, 64, 0xAA, 0xC0, 0xAA, 0})

	got, err := NewBMA222(bus, 0).ReadAcceleration()
	if err != nil {
		t.Fatalf("ReadAcceleration() error = %v", err)
	}
	if !approxEqual(got.X, 64*15.63/1000) {
		t.Errorf("X = %v", got.X)
	}
	if !approxEqual(got.Y, -64*15.63/1000) {
		t.Errorf("Y = %v", got.Y)
	}
	if got.Z != 0 {
		t.Errorf("Z = %v, want 0", got.Z)
	}
}

func TestBMA222_EncodeClamps(t *testing.T) {
	enc := encodeBMA222(Acceleration{X: 5, Y: -5, Z: 1})
	if int8(enc[1]) != 127 || int8(enc[3]) != -128 {
		t.Errorf("encoded = %v, want clamped to int8 range", enc)
	}
	if got := bma222G(enc[5]); math.Abs(got-1) > bma222Scale/1000 {
		t.Errorf("1g encodes to %v", got)
	}
}

// =============================================================================
// Light sensor
// =============================================================================

func TestLightSensor_AveragesAfterWarmup(t *testing.T) {
	adc := &SimADC{}
	adc.Set(0x1FFF) // (0x1FFF>>2)&0xFFF = 0x7FF

	sensor := NewLightSensor(adc, 4)
	got, err := sensor.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != 0x7FF {
		t.Errorf("Read() = %#x, want 0x7ff", got)
	}
	if adc.Reads() != lightWarmupSamples+4 {
		t.Errorf("samples taken = %d, want %d", adc.Reads(), lightWarmupSamples+4)
	}
}

func TestLightSensor_MasksHighBits(t *testing.T) {
	adc := &SimADC{}
	adc.Set(0xFFFF)

	got, err := NewLightSensor(adc, 0).Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != 0xFFF {
		t.Errorf("Read() = %#x, want 0xfff", got)
	}
}

func TestLightSensor_Error(t *testing.T) {
	adc := &SimADC{Err: errors.New("adc busy")}
	if _, err := NewLightSensor(adc, 1).Read(); err == nil {
		t.Error("expected error")
	}
}

// =============================================================================
// LED strip
// =============================================================================

func TestLEDStrip_SetColor(t *testing.T) {
	spi := &SimSPI{}
	led := NewLEDStrip(spi)

	if err := led.SetColor(0xFF33CC11); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}
	// red = low byte, green = next, blue = next; top byte ignored
	want := []byte{0x11, 0xCC, 0x33}
	if got := spi.LastWrite(); !bytes.Equal(got, want) {
		t.Errorf("wrote %x, want %x", got, want)
	}

	spi.Err = errors.New("bus fault")
	if err := led.SetColor(1); err == nil {
		t.Error("expected bus error")
	}
	if n := len(spi.Writes()); n != 1 {
		t.Errorf("writes = %d, want 1", n)
	}
}

// =============================================================================
// Sim board
// =============================================================================

func TestSimBoard_Defaults(t *testing.T) {
	cfg := config.Default().Hardware
	board, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer board.Close()

	if board.Sim == nil {
		t.Fatal("sim board not exposed")
	}

	temp, err := NewTMP006(board.I2C, cfg.TempSensorAddr).ReadTemperature()
	if err != nil || temp != simTemperature {
		t.Errorf("temperature = %v, %v", temp, err)
	}

	acc, err := NewBMA222(board.I2C, cfg.AccelAddr).ReadAcceleration()
	if err != nil {
		t.Fatalf("ReadAcceleration() error = %v", err)
	}
	if acc.X != 0 || acc.Y != 0 || math.Abs(acc.Z-1) > 0.02 {
		t.Errorf("acceleration at rest = %+v", acc)
	}

	light, err := NewLightSensor(board.ADC, cfg.LightSamples).Read()
	if err != nil || light != simLightLevel {
		t.Errorf("light = %v, %v", light, err)
	}

	board.Sim.SetTemperature(30)
	temp, _ = NewTMP006(board.I2C, cfg.TempSensorAddr).ReadTemperature()
	if temp != 30 {
		t.Errorf("temperature after SetTemperature = %v", temp)
	}
}

func TestSimI2C_WriteStoresRegister(t *testing.T) {
	bus := NewSimI2C()
	bus.SetRegister(0x20, 0x00, nil)

	if err := bus.Tx(0x20, []byte{0x05, 0xAB, 0xCD}, nil); err != nil {
		t.Fatalf("write error = %v", err)
	}
	r := make([]byte, 2)
	if err := bus.Tx(0x20, []byte{0x05}, r); err != nil {
		t.Fatalf("read error = %v", err)
	}
	if !bytes.Equal(r, []byte{0xAB, 0xCD}) {
		t.Errorf("read %x", r)
	}
}

func TestSimPin(t *testing.T) {
	pin := &SimPin{}
	if err := pin.Set(true); err != nil {
		t.Fatal(err)
	}
	if v, _ := pin.Get(); !v {
		t.Error("pin should be high")
	}
	pin.Err = errors.New("stuck")
	if err := pin.Set(false); err == nil {
		t.Error("expected error")
	}
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.HardwareConfig{Mode: "fpga"})
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("error = %v, want ErrUnsupportedMode", err)
	}
}
