package hal

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// BMA222 register map.
const (
	BMA222Address = 0x18

	// bma222RegData is the first of six data registers: LSB/MSB per axis,
	// with the 8-bit sample in each MSB.
	bma222RegData = 0x02

	// bma222Scale converts one LSB to milli-g in the ±2g range.
	bma222Scale = 15.63
)

// Acceleration is a 3-axis reading in g.
type Acceleration struct {
	X, Y, Z float64
}

// BMA222 reads acceleration from a Bosch BMA222 accelerometer.
type BMA222 struct {
	bus     drivers.I2C
	Address uint16
	buf     [6]byte
}

// NewBMA222 returns a driver for the accelerometer at addr (0 selects the default).
func NewBMA222(bus drivers.I2C, addr uint16) *BMA222 {
	if addr == 0 {
		addr = BMA222Address
	}
	return &BMA222{bus: bus, Address: addr}
}

// ReadAcceleration returns the current acceleration on all three axes.
func (d *BMA222) ReadAcceleration() (Acceleration, error) {
	if err := d.bus.Tx(d.Address, []byte{bma222RegData}, d.buf[:]); err != nil {
		return Acceleration{}, fmt.Errorf("bma222: reading acceleration: %w", err)
	}
	return Acceleration{
		X: bma222G(d.buf[1]),
		Y: bma222G(d.buf[3]),
		Z: bma222G(d.buf[5]),
	}, nil
}

func bma222G(msb byte) float64 {
	return float64(int8(msb)) * bma222Scale / 1000
}

// encodeBMA222 is the inverse of ReadAcceleration, used by the simulator.
func encodeBMA222(a Acceleration) []byte {
	enc := func(g float64) byte {
		v := g * 1000 / bma222Scale
		switch {
		case v > 127:
			v = 127
		case v < -128:
			v = -128
		}
		return byte(int8(v))
	}
	return []byte{0, enc(a.X), 0, enc(a.Y), 0, enc(a.Z)}
}
