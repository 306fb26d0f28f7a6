package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yeectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint16(55443), cfg.Bulb.Port)
	assert.Equal(t, 60.0, cfg.RateLimit.PerMinute)
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvAddr, "")
	t.Setenv(EnvPort, "")
	path := writeConfig(t, `
bulb:
  address: 192.168.1.40
  timeout: 2s
logging:
  level: debug
  format: json
registry:
  bulbs:
    desk: 192.168.1.40:55443
mqtt:
  broker: localhost
  qos: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.40", cfg.Bulb.Address)
	assert.Equal(t, uint16(55443), cfg.Bulb.Port, "unset values keep defaults")
	assert.Equal(t, 2*time.Second, cfg.Bulb.Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, map[string]string{"desk": "192.168.1.40:55443"}, cfg.Registry.Bulbs)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 1883, cfg.MQTT.Port)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv(EnvAddr, "10.0.0.7")
	t.Setenv(EnvPort, "1234")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", cfg.Bulb.Address)
	assert.Equal(t, uint16(1234), cfg.Bulb.Port)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "bulb: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "logging:\n  level: loud\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApplyEnvRejectsBadPort(t *testing.T) {
	env := map[string]string{EnvPort: "99999"}
	err := Default().ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero port":     func(c *Config) { c.Bulb.Port = 0 },
		"negative rate": func(c *Config) { c.RateLimit.PerMinute = -1 },
		"bad format":    func(c *Config) { c.Logging.Format = "xml" },
		"bad output":    func(c *Config) { c.Logging.Output = "syslog" },
		"bad qos":       func(c *Config) { c.MQTT.QoS = 3 },
		"bad mqtt port": func(c *Config) { c.MQTT.Broker = "b"; c.MQTT.Port = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalid, name)
	}
}
