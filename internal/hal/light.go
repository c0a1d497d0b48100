package hal

import "fmt"

const (
	// lightWarmupSamples are read and discarded before averaging to let
	// the ADC input settle.
	lightWarmupSamples = 10

	// lightSampleMask keeps the 12 significant bits after the shift.
	lightSampleMask = 0xFFF
)

// LightSensor reports ambient light as averaged ADC counts.
type LightSensor struct {
	adc     ADC
	samples int
}

// NewLightSensor averages samples readings per call (minimum 1).
func NewLightSensor(adc ADC, samples int) *LightSensor {
	if samples < 1 {
		samples = 1
	}
	return &LightSensor{adc: adc, samples: samples}
}

// Read returns the mean 12-bit light level.
func (l *LightSensor) Read() (uint16, error) {
	for i := 0; i < lightWarmupSamples; i++ {
		if _, err := l.adc.Read(); err != nil {
			return 0, fmt.Errorf("light: warming up: %w", err)
		}
	}

	var sum uint32
	for i := 0; i < l.samples; i++ {
		s, err := l.adc.Read()
		if err != nil {
			return 0, fmt.Errorf("light: sampling: %w", err)
		}
		sum += uint32((s >> 2) & lightSampleMask)
	}
	return uint16(sum / uint32(l.samples)), nil
}
