// Package config loads the process-wide Config from CLI flags,
// environment variables, a YAML file, and built-in defaults, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for every command in this module.
//
// Configuration sources, highest to lowest precedence:
//  1. CLI flags
//  2. Environment variables (IOSMUX_*; USBMUXD_SOCKET_ADDRESS is not read
//     here, muxclient.Dial consults it only when Muxer.SocketAddress is empty)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Muxer     MuxerConfig     `mapstructure:"muxer" yaml:"muxer"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	PairStore PairStoreConfig `mapstructure:"pairstore" yaml:"pairstore"`
	TLS       TLSConfig       `mapstructure:"tls" yaml:"tls"`
}

// LoggingConfig controls logger output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // DEBUG, INFO, WARN, ERROR
	Format string `mapstructure:"format" yaml:"format"` // text, json
	Output string `mapstructure:"output" yaml:"output"` // stdout, stderr, or file path
}

// TelemetryConfig controls the OpenTelemetry tracer.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

// MetricsConfig controls the Prometheus registry and its HTTP exposition.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"` // host:port for /metrics
}

// MuxerConfig locates the usbmuxd-compatible socket. Left empty, it lets
// muxclient.Dial fall through to its own discovery order (the
// USBMUXD_SOCKET_ADDRESS environment variable, then /var/run/usbmuxd,
// then the 127.0.0.1:27015 loopback fallback) — this field only needs
// setting to override that order with an explicit argument.
type MuxerConfig struct {
	SocketAddress string `mapstructure:"socket_address" yaml:"socket_address"`
}

// TimeoutsConfig bounds how long protocol operations may block.
type TimeoutsConfig struct {
	MuxRequest       time.Duration `mapstructure:"mux_request" yaml:"mux_request"`
	LockdownRequest  time.Duration `mapstructure:"lockdown_request" yaml:"lockdown_request"`
	HandshakeOverall time.Duration `mapstructure:"handshake_overall" yaml:"handshake_overall"`
}

// PairStoreConfig locates the on-disk PairRecord cache.
type PairStoreConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// TLSConfig names the trust anchors LockdownClient and CoreDeviceProxy
// sessions are validated against.
type TLSConfig struct {
	// TrustedRootFiles lists additional PEM files to trust beyond each
	// pair record's own RootCertificate.
	TrustedRootFiles []string `mapstructure:"trusted_root_files" yaml:"trusted_root_files"`
}

const envPrefix = "IOSMUX"

// Load reads configuration from configPath (if non-empty; otherwise an
// optional config.yaml in the default config directory or the working
// directory) plus the environment and defaults, in precedence order. It
// builds its own *viper.Viper via New; CLI flags are not read here, and the
// caller applies them to the returned Config.
func Load(configPath string) (*Config, error) {
	v := New(configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", configPath, err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read default config: %w", err)
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// New builds a *viper.Viper wired for this module's precedence rules
// (flags bound by the caller > IOSMUX_* env > configPath > defaults), with
// defaults pre-populated so callers that skip Load's file read still get
// usable values from v.Get*.
func New(configPath string) *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir())
		v.AddConfigPath(".")
	}

	setDefaults(v)
	return v
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "remotexpc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "remotexpc")
}
