// Package config loads yeectl settings.
//
// Configuration is read from an optional YAML file, then environment variables
// override a subset of values:
//
//	YEELIGHT_ADDR  bulb address (or registry name)
//	YEELIGHT_PORT  bulb control port
//
// Command-line flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvAddr = "YEELIGHT_ADDR"
	EnvPort = "YEELIGHT_PORT"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete configuration.
type Config struct {
	Bulb      BulbConfig      `yaml:"bulb"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Registry  RegistryConfig  `yaml:"registry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BulbConfig selects the bulb to talk to.
type BulbConfig struct {
	Address string        `yaml:"address"`
	Port    uint16        `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig keeps the client under the bulb's command quota.
// PerMinute of 0 disables limiting.
type RateLimitConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

// LoggingConfig configures logging.New.
type LoggingConfig struct {
	Level  string     `yaml:"level"`  // debug, info, warn, error
	Format string     `yaml:"format"` // console or json
	Output string     `yaml:"output"` // stderr or stdout
	File   FileConfig `yaml:"file"`
}

// FileConfig enables a rotated log file in addition to Output.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RegistryConfig configures the bulb address book. When Etcd.Endpoints is
// empty the static Bulbs map is used.
type RegistryConfig struct {
	Bulbs map[string]string `yaml:"bulbs"`
	Etcd  EtcdConfig        `yaml:"etcd"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// MQTTConfig configures the notification bridge.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen disables
// it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bulb: BulbConfig{
			Port:    55443,
			Timeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 60,
			Burst:     10,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
			Output: "stderr",
			File: FileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Registry: RegistryConfig{
			Bulbs: map[string]string{},
			Etcd: EtcdConfig{
				Prefix:      "/yeectl/bulbs",
				DialTimeout: 3 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			Port:        1883,
			TopicPrefix: "yeelight",
		},
	}
}

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
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

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides values from the environment. lookup is os.LookupEnv
// outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Bulb.Address = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port", ErrInvalid, EnvPort, v)
		}
		c.Bulb.Port = uint16(port)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Bulb.Port == 0 {
		return fmt.Errorf("%w: bulb.port must be set", ErrInvalid)
	}
	if c.Bulb.Timeout < 0 {
		return fmt.Errorf("%w: bulb.timeout is negative", ErrInvalid)
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate_limit values must not be negative", ErrInvalid)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalid, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalid, c.Logging.Format)
	}
	switch c.Logging.Output {
	case "stderr", "stdout":
	default:
		return fmt.Errorf("%w: logging.output %q", ErrInvalid, c.Logging.Output)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos %d", ErrInvalid, c.MQTT.QoS)
	}
	if c.MQTT.Broker != "" && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		return fmt.Errorf("%w: mqtt.port %d", ErrInvalid, c.MQTT.Port)
	}
	return nil
}
