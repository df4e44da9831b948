// Package config loads the daemon configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/ble-car/internal/gpio"
	"github.com/sweeney/ble-car/internal/logic"
)

// Transport types.
const (
	TransportBLE       = "ble"
	TransportSerial    = "serial"
	TransportWebSocket = "websocket"
)

// Reference identifiers advertised by the vehicle and expected by the phone app.
const (
	DefaultDeviceName  = "ESP32_CAR"
	DefaultServiceUUID = "12345678-1234-1234-1234-1234567890ab"
	DefaultCharUUID    = "abcdefab-1234-1234-1234-abcdefabcdef"
)

// Config holds all daemon configuration.
type Config struct {
	Vehicle   VehicleConfig   `yaml:"vehicle"`
	Transport TransportConfig `yaml:"transport"`
	Timing    TimingConfig    `yaml:"timing"`
	Pins      gpio.Pins       `yaml:"pins"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// VehicleConfig is how the vehicle presents itself to a controller.
type VehicleConfig struct {
	Name        string `yaml:"name"`
	ServiceUUID string `yaml:"service_uuid"`
	CharUUID    string `yaml:"char_uuid"`
}

// TransportConfig selects the command link.
type TransportConfig struct {
	Type     string `yaml:"type"`      // "ble", "serial" or "websocket"
	PortPath string `yaml:"port_path"` // serial only, e.g. /dev/rfcomm0
	BaudRate int    `yaml:"baud_rate"` // serial only
}

// TimingConfig holds the loop and safety intervals.
type TimingConfig struct {
	Tick           time.Duration `yaml:"tick"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	BlinkInterval  time.Duration `yaml:"blink_interval"`
	Heartbeat      time.Duration `yaml:"heartbeat"` // 0 disables
}

// MQTTConfig configures telemetry. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HTTPConfig configures the status server. An empty address disables it
// unless the WebSocket transport needs it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a config with the reference wiring and timings.
func Default() Config {
	return Config{
		Vehicle: VehicleConfig{
			Name:        DefaultDeviceName,
			ServiceUUID: DefaultServiceUUID,
			CharUUID:    DefaultCharUUID,
		},
		Transport: TransportConfig{
			Type:     TransportBLE,
			PortPath: "/dev/rfcomm0",
			BaudRate: 115200,
		},
		Timing: TimingConfig{
			Tick:           10 * time.Millisecond,
			CommandTimeout: logic.DefaultCommandTimeout,
			BlinkInterval:  logic.DefaultBlinkInterval,
			Heartbeat:      15 * time.Minute,
		},
		Pins: gpio.DefaultPins(),
		MQTT: MQTTConfig{
			ClientID:    "ble-car",
			TopicPrefix: "vehicle/ble-car",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads config from a YAML file over the defaults. A missing file yields
// the defaults; a malformed or invalid file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the daemon cannot run with.
func (c Config) Validate() error {
	switch c.Transport.Type {
	case TransportBLE, TransportSerial, TransportWebSocket:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport.Type)
	}
	if c.Transport.Type == TransportSerial && c.Transport.PortPath == "" {
		return errors.New("serial transport needs port_path")
	}
	if c.Transport.Type == TransportWebSocket && c.HTTP.Addr == "" {
		return errors.New("websocket transport needs http.addr")
	}
	if c.Timing.Tick <= 0 {
		return errors.New("tick must be positive")
	}
	if c.Timing.CommandTimeout <= 0 || c.Timing.BlinkInterval <= 0 {
		return errors.New("command_timeout and blink_interval must be positive")
	}
	if c.Timing.Heartbeat < 0 {
		return errors.New("heartbeat must not be negative")
	}
	if c.Vehicle.Name == "" {
		return errors.New("vehicle name must not be empty")
	}
	return nil
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
