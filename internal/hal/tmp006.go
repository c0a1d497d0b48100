package hal

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// TMP006 register map.
const (
	TMP006Address = 0x41

	tmp006RegTemperature = 0x01
)

// TMP006 reads die temperature from a TMP006 infrared thermopile.
type TMP006 struct {
	bus     drivers.I2C
	Address uint16
	buf     [2]byte
}

// NewTMP006 returns a driver for the sensor at addr (0 selects the default).
// It does not touch the device.
func NewTMP006(bus drivers.I2C, addr uint16) *TMP006 {
	if addr == 0 {
		addr = TMP006Address
	}
	return &TMP006{bus: bus, Address: addr}
}

// ReadTemperature returns the die temperature in degrees Celsius.
//
// The register holds a 14-bit two's complement value, left-justified,
// at 1/32 °C per LSB.
func (d *TMP006) ReadTemperature() (float64, error) {
	if err := d.bus.Tx(d.Address, []byte{tmp006RegTemperature}, d.buf[:]); err != nil {
		return 0, fmt.Errorf("tmp006: reading temperature: %w", err)
	}
	raw := int16(uint16(d.buf[0])<<8|uint16(d.buf[1])) >> 2
	return float64(raw) / 32, nil
}

// encodeTMP006 is the inverse of ReadTemperature, used by the simulator.
func encodeTMP006(celsius float64) []byte {
	raw := uint16(int16(celsius*32) << 2)
	return []byte{byte(raw >> 8), byte(raw)}
}
