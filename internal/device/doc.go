// Package device holds the board's application state and connects it to
// the shadow engine.
//
// State is the set of values mirrored to the cloud shadow. Controller binds
// each field to a shadow key, refreshes sensor readings once per cycle and
// drives actuators when a delta arrives:
//
//	Key               Type     Direction      Hardware
//	rgb_light         uint32   report+delta   LED strip (SPI)
//	ambient_light     uint32   report         light sensor (ADC)
//	status_led        bool     report+delta   status LED (GPIO)
//	ambient_temp      float32  report         TMP006 (I2C)
//	acc_x/acc_y/acc_z float32  report         BMA222 (I2C), optional
//	earthquake_alarm  bool     report         derived from BMA222
//	heater            bool     report+delta   heater relay (GPIO)
//
// All State fields are owned by the poll goroutine. Refresh hooks and delta
// handlers both run there, so no locking is needed.
package device
