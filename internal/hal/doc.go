// Package hal provides the peripherals of the shadow demo board.
//
// Sensor and actuator drivers are written against the tinygo.org/x/drivers
// bus interfaces, so the same code runs over Linux character devices or an
// in-process simulation:
//
//	TMP006      temperature over I2C (default address 0x41)
//	BMA222      3-axis accelerometer over I2C (default address 0x18)
//	LightSensor ambient light from an ADC channel
//	LEDStrip    RGB colour written over SPI
//	Pin         status LED and heater outputs
//
// Open builds a Board for the configured mode. In "sim" mode every bus is
// backed by the types in sim.go; tests use those directly.
package hal
