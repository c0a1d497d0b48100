package device

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/shadowsync/internal/hal"
	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
	"github.com/nerrad567/shadowsync/internal/shadow"
)

// DefaultEarthquakeThreshold is the per-axis change in g between two
// readings that raises the earthquake alarm.
const DefaultEarthquakeThreshold = 0.1

// Logger defines the logging interface used by the Controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller binds State to the board's sensors and actuators.
type Controller struct {
	state *State
	board *hal.Board

	temp  *hal.TMP006
	accel *hal.BMA222
	light *hal.LightSensor
	led   *hal.LEDStrip

	threshold   float64
	reportAccel bool

	// Previous X/Y reading for earthquake detection. Starts at rest.
	lastX, lastY float64

	logger Logger
}

// NewController creates a controller for state on board.
func NewController(state *State, board *hal.Board, cfg config.HardwareConfig) *Controller {
	threshold := cfg.EarthquakeThreshold
	if threshold <= 0 {
		threshold = DefaultEarthquakeThreshold
	}
	return &Controller{
		state:       state,
		board:       board,
		temp:        hal.NewTMP006(board.I2C, cfg.TempSensorAddr),
		accel:       hal.NewBMA222(board.I2C, cfg.AccelAddr),
		light:       hal.NewLightSensor(board.ADC, cfg.LightSamples),
		led:         hal.NewLEDStrip(board.SPI),
		threshold:   threshold,
		reportAccel: cfg.ReportAcceleration,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// State returns the state the controller drives.
func (c *Controller) State() *State {
	return c.state
}

// Bindings returns the shadow bindings in registration order. The
// acceleration keys are included only when acceleration reporting is on.
func (c *Controller) Bindings() []shadow.Binding {
	s := c.state
	bindings := []shadow.Binding{
		{Key: KeyRGBLight, Cell: shadow.Uint32Cell(&s.RGBLight), Reported: true, DeltaSubscribed: true,
			OnDelta: shadow.DeltaHandlerFunc(c.onRGBLight)},
		{Key: KeyAmbientLight, Cell: shadow.Uint32Cell(&s.AmbientLight), Reported: true},
		{Key: KeyStatusLED, Cell: shadow.BoolCell(&s.StatusLED), Reported: true, DeltaSubscribed: true,
			OnDelta: shadow.DeltaHandlerFunc(c.onStatusLED)},
		{Key: KeyAmbientTemp, Cell: shadow.Float32Cell(&s.AmbientTemp), Reported: true},
	}
	if c.reportAccel {
		bindings = append(bindings,
			shadow.Binding{Key: KeyAccX, Cell: shadow.Float32Cell(&s.AccX), Reported: true},
			shadow.Binding{Key: KeyAccY, Cell: shadow.Float32Cell(&s.AccY), Reported: true},
			shadow.Binding{Key: KeyAccZ, Cell: shadow.Float32Cell(&s.AccZ), Reported: true},
		)
	}
	return append(bindings,
		shadow.Binding{Key: KeyEarthquakeAlarm, Cell: shadow.BoolCell(&s.EarthquakeAlarm), Reported: true},
		shadow.Binding{Key: KeyHeater, Cell: shadow.BoolCell(&s.Heater), Reported: true, DeltaSubscribed: true,
			OnDelta: shadow.DeltaHandlerFunc(c.onHeater)},
	)
}

// Register adds every binding to reg, stopping at the first failure.
//
// Returns:
//   - error: The registry's *shadow.RegistrationError, naming the key
func (c *Controller) Register(reg *shadow.Registry) error {
	if err := reg.RegisterAll(c.Bindings()); err != nil {
		return fmt.Errorf("registering device state: %w", err)
	}
	return nil
}

// RefreshHooks returns the per-cycle sensor refreshes in the order the
// engine should run them.
func (c *Controller) RefreshHooks() []shadow.RefreshFunc {
	return []shadow.RefreshFunc{
		c.hook("ambient light", c.RefreshLight),
		c.hook("temperature", c.RefreshTemperature),
		c.hook("motion", c.RefreshMotion),
	}
}

// hook adapts a refresh to shadow.RefreshFunc. A failed read keeps the
// previous value in State and is logged.
func (c *Controller) hook(name string, refresh func() error) shadow.RefreshFunc {
	return func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		if err := refresh(); err != nil {
			c.logger.Warn("sensor refresh failed", "sensor", name, "error", err)
		}
	}
}

// RefreshTemperature reads the TMP006 into AmbientTemp.
func (c *Controller) RefreshTemperature() error {
	celsius, err := c.temp.ReadTemperature()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSensorRead, err)
	}
	c.state.AmbientTemp = float32(celsius)
	return nil
}

// RefreshLight reads the averaged light level into AmbientLight.
func (c *Controller) RefreshLight() error {
	level, err := c.light.Read()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSensorRead, err)
	}
	c.state.AmbientLight = uint32(level)
	return nil
}

// RefreshMotion reads the accelerometer into AccX/AccY/AccZ and sets
// EarthquakeAlarm when X or Y moved by at least the threshold since the
// previous reading.
func (c *Controller) RefreshMotion() error {
	acc, err := c.accel.ReadAcceleration()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSensorRead, err)
	}

	dx := acc.X - c.lastX
	dy := acc.Y - c.lastY
	c.lastX, c.lastY = acc.X, acc.Y

	c.state.AccX = float32(acc.X)
	c.state.AccY = float32(acc.Y)
	c.state.AccZ = float32(acc.Z)

	alarm := math.Abs(dx) >= c.threshold || math.Abs(dy) >= c.threshold
	if alarm && !c.state.EarthquakeAlarm {
		c.logger.Warn("earthquake detected", "dx", dx, "dy", dy)
	}
	c.state.EarthquakeAlarm = alarm
	return nil
}

// ApplyOutputs drives every actuator from the current State. It is called
// once at startup so outputs match restored values.
func (c *Controller) ApplyOutputs() error {
	if err := c.led.SetColor(c.state.RGBLight); err != nil {
		return fmt.Errorf("%w: %w", ErrActuator, err)
	}
	if err := c.board.StatusLED.Set(c.state.StatusLED); err != nil {
		return fmt.Errorf("%w: status led: %w", ErrActuator, err)
	}
	if err := c.board.Heater.Set(c.state.Heater); err != nil {
		return fmt.Errorf("%w: heater: %w", ErrActuator, err)
	}
	return nil
}

// =============================================================================
// Delta actuators
// =============================================================================

func (c *Controller) onRGBLight(b shadow.Binding) {
	color := b.Cell.Uint32()
	if err := c.led.SetColor(color); err != nil {
		c.logger.Error("setting rgb light failed", "color", color, "error", err)
		return
	}
	c.logger.Debug("rgb light set", "r", color&0xFF, "g", (color>>8)&0xFF, "b", (color>>16)&0xFF)
}

func (c *Controller) onStatusLED(b shadow.Binding) {
	on := b.Cell.Bool()
	if err := c.board.StatusLED.Set(on); err != nil {
		c.logger.Error("setting status led failed", "on", on, "error", err)
	}
}

func (c *Controller) onHeater(b shadow.Binding) {
	on := b.Cell.Bool()
	if err := c.board.Heater.Set(on); err != nil {
		c.logger.Error("setting heater failed", "on", on, "error", err)
		return
	}
	c.logger.Info("heater switched", "on", on)
}
