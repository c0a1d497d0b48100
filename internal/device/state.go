package device

import (
	"fmt"

	"github.com/nerrad567/shadowsync/internal/shadow"
)

// Shadow keys.
const (
	KeyRGBLight        = "rgb_light"
	KeyAmbientLight    = "ambient_light"
	KeyStatusLED       = "status_led"
	KeyAmbientTemp     = "ambient_temp"
	KeyAccX            = "acc_x"
	KeyAccY            = "acc_y"
	KeyAccZ            = "acc_z"
	KeyEarthquakeAlarm = "earthquake_alarm"
	KeyHeater          = "heater"
)

// State is the application state mirrored to the shadow.
type State struct {
	RGBLight        uint32
	AmbientLight    uint32
	StatusLED       bool
	AmbientTemp     float32
	AccX            float32
	AccY            float32
	AccZ            float32
	EarthquakeAlarm bool
	Heater          bool
}

// Cell returns the shadow cell backing key, or false for an unknown key.
func (s *State) Cell(key string) (shadow.Cell, bool) {
	switch key {
	case KeyRGBLight:
		return shadow.Uint32Cell(&s.RGBLight), true
	case KeyAmbientLight:
		return shadow.Uint32Cell(&s.AmbientLight), true
	case KeyStatusLED:
		return shadow.BoolCell(&s.StatusLED), true
	case KeyAmbientTemp:
		return shadow.Float32Cell(&s.AmbientTemp), true
	case KeyAccX:
		return shadow.Float32Cell(&s.AccX), true
	case KeyAccY:
		return shadow.Float32Cell(&s.AccY), true
	case KeyAccZ:
		return shadow.Float32Cell(&s.AccZ), true
	case KeyEarthquakeAlarm:
		return shadow.BoolCell(&s.EarthquakeAlarm), true
	case KeyHeater:
		return shadow.BoolCell(&s.Heater), true
	default:
		return shadow.Cell{}, false
	}
}

// Restore writes a previously recorded value into the field for key.
//
// Parameters:
//   - key: Shadow key
//   - value: uint32, bool or float32 matching the key's type; float64 and
//     int64 as produced by JSON or SQL decoding are converted
//
// Returns:
//   - error: If the key is unknown or value has the wrong type
func (s *State) Restore(key string, value any) error {
	cell, ok := s.Cell(key)
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}

	switch cell.Type() {
	case shadow.TypeUint32:
		switch v := value.(type) {
		case uint32:
			cell.SetUint32(v)
		case int64:
			if v < 0 || v > int64(^uint32(0)) {
				return fmt.Errorf("%s: %d out of range", key, v)
			}
			cell.SetUint32(uint32(v))
		case float64:
			if v < 0 || v > float64(^uint32(0)) || v != float64(uint32(v)) {
				return fmt.Errorf("%s: %v is not a uint32", key, v)
			}
			cell.SetUint32(uint32(v))
		default:
			return fmt.Errorf("%s: want uint32, got %T", key, value)
		}
	case shadow.TypeBool:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%s: want bool, got %T", key, value)
		}
		cell.SetBool(v)
	case shadow.TypeFloat32:
		switch v := value.(type) {
		case float32:
			cell.SetFloat32(v)
		case float64:
			cell.SetFloat32(float32(v))
		default:
			return fmt.Errorf("%s: want float32, got %T", key, value)
		}
	}
	return nil
}
