package hal

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// LEDStrip drives an RGB LED over SPI. A colour is written as three bytes
// in R, G, B order.
type LEDStrip struct {
	bus drivers.SPI
	buf [3]byte
}

// NewLEDStrip returns a driver for the LED on bus.
func NewLEDStrip(bus drivers.SPI) *LEDStrip {
	return &LEDStrip{bus: bus}
}

// SetColor writes a packed colour: red in bits 0-7, green in 8-15 and blue
// in 16-23. Higher bits are ignored.
func (l *LEDStrip) SetColor(packed uint32) error {
	l.buf[0] = byte(packed)
	l.buf[1] = byte(packed >> 8)
	l.buf[2] = byte(packed >> 16)
	if err := l.bus.Tx(l.buf[:], nil); err != nil {
		return fmt.Errorf("led: writing colour %#06x: %w", packed&0xFFFFFF, err)
	}
	return nil
}
