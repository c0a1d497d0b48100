package hal

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"

	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
)

// Pin is a digital output.
type Pin interface {
	Set(high bool) error
	Get() (bool, error)
}

// ADC is a single analog input channel returning raw counts.
type ADC interface {
	Read() (uint16, error)
}

// Board bundles the buses and pins of one device.
type Board struct {
	I2C       drivers.I2C
	SPI       drivers.SPI
	ADC       ADC
	StatusLED Pin
	Heater    Pin

	// Sim is set when the board is simulated, giving callers access to
	// the fake sensors.
	Sim *SimBoard

	closers []func() error
}

// Open builds the board selected by cfg.Mode.
//
// Parameters:
//   - cfg: Hardware section of the configuration
//
// Returns:
//   - *Board: Ready-to-use peripherals
//   - error: ErrUnsupportedMode, or the first device that failed to open
func Open(cfg config.HardwareConfig) (*Board, error) {
	switch cfg.Mode {
	case config.HardwareModeSim:
		sim := NewSimBoard(cfg)
		return sim.Board(), nil
	case config.HardwareModeLinux:
		return openLinux(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, cfg.Mode)
	}
}

// Close releases every device opened for the board.
func (b *Board) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
