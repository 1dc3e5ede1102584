package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults_NoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err) // explicit path that doesn't exist is a hard error

	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, 5*time.Second, cfg.Timeouts.MuxRequest)
	require.Empty(t, cfg.Muxer.SocketAddress)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: DEBUG
  format: json
muxer:
  socket_address: "unix:/tmp/test-usbmuxd"
timeouts:
  mux_request: 2s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "unix:/tmp/test-usbmuxd", cfg.Muxer.SocketAddress)
	require.Equal(t, 2*time.Second, cfg.Timeouts.MuxRequest)
	// Unset fields still carry their defaults.
	require.Equal(t, 10*time.Second, cfg.Timeouts.LockdownRequest)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: INFO\n"), 0o644))

	t.Setenv("IOSMUX_LOGGING_LEVEL", "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "WARN", cfg.Logging.Level)
}
