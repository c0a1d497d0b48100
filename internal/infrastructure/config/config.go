package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardware modes.
const (
	HardwareModeSim   = "sim"
	HardwareModeLinux = "linux"
)

// Config is the root configuration structure for shadowsync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Shadow   ShadowConfig   `yaml:"shadow"`
	Hardware HardwareConfig `yaml:"hardware"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies this device to the shadow service.
type DeviceConfig struct {
	// ThingName is the name of the shadow document this device owns.
	ThingName string `yaml:"thing_name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTTLSConfig contains the credential files for mutual TLS.
//
// TLS is enabled when Enabled is set. The root CA verifies the broker;
// the client certificate and key authenticate the device.
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RootCA     string `yaml:"root_ca"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	ServerName string `yaml:"server_name,omitempty"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// ShadowConfig contains shadow engine and session tunables.
type ShadowConfig struct {
	// Capacity is the maximum number of bindings. Default: 12
	Capacity int `yaml:"capacity"`

	// ReportBufferSize is the fixed report buffer in bytes. Default: 512
	ReportBufferSize int `yaml:"report_buffer_size"`

	// PollTimeout bounds each Yield. Default: 200ms
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// CycleInterval is the sleep between report cycles. Default: 1s
	CycleInterval time.Duration `yaml:"cycle_interval"`

	// NotReadyBackoff is the sleep after a skipped cycle. Default: 1s
	NotReadyBackoff time.Duration `yaml:"not_ready_backoff"`

	// AckTimeout is how long an update waits for accepted/rejected. Default: 4s
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// TopicPrefix is prepended to every shadow topic. Default: "$aws"
	TopicPrefix string `yaml:"topic_prefix"`

	// MaxPendingAcks bounds concurrent update submissions. Default: 10
	MaxPendingAcks int `yaml:"max_pending_acks"`

	// MaxDeltaKeys bounds delta registrations. Default: 12
	MaxDeltaKeys int `yaml:"max_delta_keys"`
}

// HardwareConfig selects and configures the peripheral buses.
type HardwareConfig struct {
	// Mode is "sim" (in-process simulation) or "linux" (i2c-dev, spidev,
	// sysfs GPIO, IIO ADC). Default: "sim"
	Mode string `yaml:"mode"`

	I2CBus    string `yaml:"i2c_bus"`
	SPIDevice string `yaml:"spi_device"`
	ADCPath   string `yaml:"adc_path"`
	GPIORoot  string `yaml:"gpio_root"`

	StatusLEDPin int `yaml:"status_led_pin"`
	HeaterPin    int `yaml:"heater_pin"`

	// TempSensorAddr is the I2C address of the temperature sensor. Default: 0x41
	TempSensorAddr uint16 `yaml:"temp_sensor_addr"`

	// AccelAddr is the I2C address of the accelerometer. Default: 0x18
	AccelAddr uint16 `yaml:"accel_addr"`

	// LightSamples is the number of ADC samples averaged per reading. Default: 16
	LightSamples int `yaml:"light_samples"`

	// EarthquakeThreshold is the per-axis change in g that raises the alarm. Default: 0.1
	EarthquakeThreshold float64 `yaml:"earthquake_threshold"`

	// ReportAcceleration adds acc_x/acc_y/acc_z to the shadow.
	ReportAcceleration bool `yaml:"report_acceleration"`
}

// DatabaseConfig contains SQLite journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes journal rows older than this at startup.
	// Zero keeps everything. Default: 30
	RetentionDays int `yaml:"retention_days"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	// File is the log file path when Output is "file".
	File string `yaml:"file"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHADOWSYNC_SECTION_KEY
// For example: SHADOWSYNC_MQTT_HOST, SHADOWSYNC_DEVICE_THING_NAME
//
// An empty path skips step 2.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults for a simulated device
// talking to a local broker.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ThingName: "shadowsync-device",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "shadowsync-device",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Shadow: ShadowConfig{
			Capacity:         12,
			ReportBufferSize: 512,
			PollTimeout:      200 * time.Millisecond,
			CycleInterval:    time.Second,
			NotReadyBackoff:  time.Second,
			AckTimeout:       4 * time.Second,
			TopicPrefix:      "$aws",
			MaxPendingAcks:   10,
			MaxDeltaKeys:     12,
		},
		Hardware: HardwareConfig{
			Mode:                HardwareModeSim,
			I2CBus:              "/dev/i2c-1",
			SPIDevice:           "/dev/spidev0.0",
			ADCPath:             "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
			GPIORoot:            "/sys/class/gpio",
			StatusLEDPin:        17,
			HeaterPin:           27,
			TempSensorAddr:      0x41,
			AccelAddr:           0x18,
			LightSamples:        16,
			EarthquakeThreshold: 0.1,
		},
		Database: DatabaseConfig{
			Path:        "./data/shadowsync.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9100,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SHADOWSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("SHADOWSYNC_DEVICE_THING_NAME"); v != "" {
		cfg.Device.ThingName = v
	}

	// MQTT
	if v := os.Getenv("SHADOWSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SHADOWSYNC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SHADOWSYNC_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("SHADOWSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SHADOWSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SHADOWSYNC_MQTT_ROOT_CA"); v != "" {
		cfg.MQTT.TLS.RootCA = v
	}
	if v := os.Getenv("SHADOWSYNC_MQTT_CLIENT_CERT"); v != "" {
		cfg.MQTT.TLS.ClientCert = v
	}
	if v := os.Getenv("SHADOWSYNC_MQTT_CLIENT_KEY"); v != "" {
		cfg.MQTT.TLS.ClientKey = v
	}

	// Hardware
	if v := os.Getenv("SHADOWSYNC_HARDWARE_MODE"); v != "" {
		cfg.Hardware.Mode = v
	}

	// Database
	if v := os.Getenv("SHADOWSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("SHADOWSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SHADOWSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.ThingName == "" {
		errs = append(errs, "device.thing_name is required")
	} else if strings.ContainsAny(c.Device.ThingName, "/+#") {
		errs = append(errs, "device.thing_name must not contain MQTT topic characters (/ + #)")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 1 {
		errs = append(errs, "mqtt.qos must be 0 or 1")
	}
	if c.MQTT.TLS.Enabled && (c.MQTT.TLS.ClientCert == "") != (c.MQTT.TLS.ClientKey == "") {
		errs = append(errs, "mqtt.tls.client_cert and mqtt.tls.client_key must be set together")
	}

	// Shadow validation
	if c.Shadow.Capacity < 1 {
		errs = append(errs, "shadow.capacity must be at least 1")
	}
	if c.Shadow.ReportBufferSize < 32 {
		errs = append(errs, "shadow.report_buffer_size must be at least 32")
	}
	if c.Shadow.PollTimeout <= 0 || c.Shadow.CycleInterval <= 0 ||
		c.Shadow.NotReadyBackoff <= 0 || c.Shadow.AckTimeout <= 0 {
		errs = append(errs, "shadow timings must be positive")
	}
	if c.Shadow.MaxPendingAcks < 1 {
		errs = append(errs, "shadow.max_pending_acks must be at least 1")
	}
	if c.Shadow.MaxDeltaKeys < 1 {
		errs = append(errs, "shadow.max_delta_keys must be at least 1")
	}

	// Hardware validation
	switch c.Hardware.Mode {
	case HardwareModeSim, HardwareModeLinux:
	default:
		errs = append(errs, fmt.Sprintf("hardware.mode must be %q or %q", HardwareModeSim, HardwareModeLinux))
	}
	if c.Hardware.LightSamples < 1 {
		errs = append(errs, "hardware.light_samples must be at least 1")
	}
	if c.Hardware.EarthquakeThreshold <= 0 {
		errs = append(errs, "hardware.earthquake_threshold must be positive")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
