// Package config handles loading and validating shadowsync configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The client key referenced by mqtt.tls.client_key should be readable only
//     by the agent user (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/shadowsync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ThingName)
package config
