package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/McuMirror/ModbusLib/modbus"
)

func TestDefaultSettings(t *testing.T) {
	require := require.New(t)

	settings := DefaultSettings()
	require.Equal(DefaultHost, settings.Host)
	require.Equal(modbus.StandardTCPPort, settings.Port)
	require.Equal(DefaultTimeout, settings.Timeout)
	require.Equal(DefaultMaxConnections, settings.MaxConnections)
	require.True(settings.BroadcastEnabled)
	require.Empty(settings.UnitMap)
	require.NoError(settings.Validate())
}

func TestLoadSettings(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	content := `
object_name: boiler-room
host: 127.0.0.1
port: 1502
timeout: 750ms
max_connections: 4
broadcast_enabled: false
unit_map: "1-5,10"
`
	require.NoError(os.WriteFile(path, []byte(content), 0o644))

	settings, err := LoadSettings(path)
	require.NoError(err)
	require.Equal("boiler-room", settings.ObjectName)
	require.Equal("127.0.0.1", settings.Host)
	require.Equal(uint16(1502), settings.Port)
	require.Equal(750*time.Millisecond, settings.Timeout)
	require.Equal(4, settings.MaxConnections)
	require.False(settings.BroadcastEnabled)
	require.Equal("1-5,10", settings.UnitMap)
}

func TestLoadSettingsDefaultsApply(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(os.WriteFile(path, []byte("port: 10502\n"), 0o644))

	settings, err := LoadSettings(path)
	require.NoError(err)
	require.Equal(uint16(10502), settings.Port)
	require.Equal(DefaultHost, settings.Host)
	require.Equal(DefaultMaxConnections, settings.MaxConnections)
	require.True(settings.BroadcastEnabled)
}

func TestLoadSettingsErrors(t *testing.T) {
	require := require.New(t)

	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(err)

	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(os.WriteFile(path, []byte("unit_map: bogus\n"), 0o644))
	_, err = LoadSettings(path)
	require.Error(err)
}

func TestSettingsValidate(t *testing.T) {
	require := require.New(t)

	settings := DefaultSettings()
	settings.Timeout = -time.Second
	require.Error(settings.Validate())

	settings = DefaultSettings()
	settings.MaxConnections = -1
	require.Error(settings.Validate())

	settings = DefaultSettings()
	settings.UnitMap = "5-1"
	require.Error(settings.Validate())

	settings = DefaultSettings()
	settings.UnitMap = "1-5"
	require.NoError(settings.Validate())
}
