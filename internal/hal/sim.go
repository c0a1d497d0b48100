package hal

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
)

// SimI2C implements drivers.I2C over an in-memory register file.
//
// A Tx with a single write byte selects a register and reads from it; a Tx
// with more write bytes stores the remainder at that register.
type SimI2C struct {
	mu        sync.Mutex
	registers map[uint16]map[byte][]byte
	Err       error
	Txs       int
}

// NewSimI2C returns a bus with no devices attached.
func NewSimI2C() *SimI2C {
	return &SimI2C{registers: make(map[uint16]map[byte][]byte)}
}

// SetRegister attaches a device at addr (if needed) and sets reg's contents.
func (b *SimI2C) SetRegister(addr uint16, reg byte, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dev, ok := b.registers[addr]
	if !ok {
		dev = make(map[byte][]byte)
		b.registers[addr] = dev
	}
	dev[reg] = append([]byte(nil), data...)
}

// Tx implements drivers.I2C.
func (b *SimI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Txs++

	if b.Err != nil {
		return b.Err
	}
	dev, ok := b.registers[addr]
	if !ok {
		return fmt.Errorf("%w %#02x", ErrNoDevice, addr)
	}
	if len(w) == 0 {
		return nil
	}

	reg := w[0]
	if len(w) > 1 {
		dev[reg] = append([]byte(nil), w[1:]...)
	}
	if len(r) == 0 {
		return nil
	}
	data := dev[reg]
	if len(data) < len(r) {
		return fmt.Errorf("%w: register %#02x has %d bytes, want %d", ErrShortRead, reg, len(data), len(r))
	}
	copy(r, data)
	return nil
}

var _ drivers.I2C = (*SimI2C)(nil)

// SimSPI implements drivers.SPI and records every write.
type SimSPI struct {
	mu     sync.Mutex
	writes [][]byte
	Err    error
}

// Tx implements drivers.SPI. Reads return zeros.
func (s *SimSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if len(w) > 0 {
		s.writes = append(s.writes, append([]byte(nil), w...))
	}
	clear(r)
	return nil
}

// Transfer implements drivers.SPI.
func (s *SimSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.Tx([]byte{b}, r[:])
	return r[0], err
}

// Writes returns a copy of all writes so far.
func (s *SimSPI) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// LastWrite returns the most recent write, or nil.
func (s *SimSPI) LastWrite() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return nil
	}
	return s.writes[len(s.writes)-1]
}

var _ drivers.SPI = (*SimSPI)(nil)

// SimPin is an in-memory digital output.
type SimPin struct {
	mu    sync.Mutex
	level bool
	Err   error
}

// Set implements Pin.
func (p *SimPin) Set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.level = high
	return nil
}

// Get implements Pin.
func (p *SimPin) Get() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, p.Err
}

// SimADC returns a fixed raw sample.
type SimADC struct {
	mu    sync.Mutex
	value uint16
	reads int
	Err   error
}

// Set changes the raw value returned by Read.
func (a *SimADC) Set(raw uint16) {
	a.mu.Lock()
	a.value = raw
	a.mu.Unlock()
}

// Read implements ADC.
func (a *SimADC) Read() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reads++
	return a.value, a.Err
}

// Reads returns how many samples have been taken.
func (a *SimADC) Reads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reads
}

// SimBoard is a simulated demo board with settable sensor values.
type SimBoard struct {
	I2C       *SimI2C
	SPI       *SimSPI
	ADC       *SimADC
	StatusLED *SimPin
	Heater    *SimPin

	tempAddr  uint16
	accelAddr uint16
}

// Initial simulated environment.
const (
	simTemperature = 23.5
	simLightLevel  = 2048
)

// NewSimBoard creates a board with the sensors at the configured addresses
// reporting room temperature, a level board at rest and mid-scale light.
func NewSimBoard(cfg config.HardwareConfig) *SimBoard {
	s := &SimBoard{
		I2C:       NewSimI2C(),
		SPI:       &SimSPI{},
		ADC:       &SimADC{},
		StatusLED: &SimPin{},
		Heater:    &SimPin{},
		tempAddr:  cfg.TempSensorAddr,
		accelAddr: cfg.AccelAddr,
	}
	if s.tempAddr == 0 {
		s.tempAddr = TMP006Address
	}
	if s.accelAddr == 0 {
		s.accelAddr = BMA222Address
	}

	s.SetTemperature(simTemperature)
	s.SetAcceleration(Acceleration{Z: 1})
	s.SetLight(simLightLevel)
	return s
}

// SetTemperature sets the simulated TMP006 reading.
func (s *SimBoard) SetTemperature(celsius float64) {
	s.I2C.SetRegister(s.tempAddr, tmp006RegTemperature, encodeTMP006(celsius))
}

// SetAcceleration sets the simulated BMA222 reading.
func (s *SimBoard) SetAcceleration(a Acceleration) {
	s.I2C.SetRegister(s.accelAddr, bma222RegData, encodeBMA222(a))
}

// SetLight sets the 12-bit level the light sensor will average to.
func (s *SimBoard) SetLight(level uint16) {
	s.ADC.Set((level & lightSampleMask) << 2)
}

// Board returns the simulated peripherals as a Board.
func (s *SimBoard) Board() *Board {
	return &Board{
		I2C:       s.I2C,
		SPI:       s.SPI,
		ADC:       s.ADC,
		StatusLED: s.StatusLED,
		Heater:    s.Heater,
		Sim:       s,
	}
}
