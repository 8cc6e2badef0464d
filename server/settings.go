package server

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/McuMirror/ModbusLib/modbus"
)

// Default TCP server settings.
const (
	DefaultHost           = "0.0.0.0"
	DefaultTimeout        = 3 * time.Second
	DefaultMaxConnections = 10
)

// Settings is the configuration surface of a TCPServer.
type Settings struct {
	// ObjectName is the signal source name of the server.
	ObjectName string `mapstructure:"object_name"`
	// Host is the bind address of the listening socket.
	Host string `mapstructure:"host"`
	// Port is the listening TCP port; 0 binds an ephemeral port.
	Port uint16 `mapstructure:"port"`
	// Timeout bounds frame completion on child connections.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxConnections caps the number of concurrently served sockets.
	// Zero is coerced to one.
	MaxConnections int `mapstructure:"max_connections"`
	// BroadcastEnabled makes unit 0 a broadcast address.
	BroadcastEnabled bool `mapstructure:"broadcast_enabled"`
	// UnitMap restricts the accepted unit ids, in the textual range form
	// ("1-5,10"). Empty accepts all units.
	UnitMap string `mapstructure:"unit_map"`
}

// DefaultSettings returns the settings a TCPServer starts from.
func DefaultSettings() Settings {
	return Settings{
		ObjectName:       "tcp-server",
		Host:             DefaultHost,
		Port:             modbus.StandardTCPPort,
		Timeout:          DefaultTimeout,
		MaxConnections:   DefaultMaxConnections,
		BroadcastEnabled: true,
	}
}

// LoadSettings reads a TCP server settings file (any format viper handles:
// YAML, TOML, JSON, ...) layered over the defaults. Environment variables
// prefixed MODBUS_ override file values.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("modbus")
	v.AutomaticEnv()

	v.SetDefault("object_name", settings.ObjectName)
	v.SetDefault("host", settings.Host)
	v.SetDefault("port", settings.Port)
	v.SetDefault("timeout", settings.Timeout)
	v.SetDefault("max_connections", settings.MaxConnections)
	v.SetDefault("broadcast_enabled", settings.BroadcastEnabled)
	v.SetDefault("unit_map", settings.UnitMap)

	if err := v.ReadInConfig(); err != nil {
		return settings, fmt.Errorf("server: read settings %s: %w", path, err)
	}
	if err := v.Unmarshal(&settings); err != nil {
		return settings, fmt.Errorf("server: unmarshal settings %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if s.Timeout < 0 {
		return fmt.Errorf("server: negative timeout %v", s.Timeout)
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("server: negative max_connections %d", s.MaxConnections)
	}
	if s.UnitMap != "" {
		if _, ok := modbus.ParseUnitMap(s.UnitMap); !ok {
			return fmt.Errorf("server: malformed unit_map %q", s.UnitMap)
		}
	}
	return nil
}
