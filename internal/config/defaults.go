package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Defaults returns a Config populated with every default value. Load
// starts from this before unmarshalling file/env overrides on top, so a
// field left unset anywhere else still has a sane value.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Insecure:    true,
			SampleRate:  1.0,
			ServiceName: "remotexpc",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
		Muxer: MuxerConfig{
			SocketAddress: "",
		},
		Timeouts: TimeoutsConfig{
			MuxRequest:       5 * time.Second,
			LockdownRequest:  10 * time.Second,
			HandshakeOverall: 15 * time.Second,
		},
		PairStore: PairStoreConfig{
			Dir: filepath.Join(defaultConfigDir(), "pairs"),
		},
	}
}

// setDefaults registers the same values Defaults returns with v, so
// v.Get*/v.Unmarshal see them even when no file or env var sets a key.
func setDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)

	v.SetDefault("muxer.socket_address", d.Muxer.SocketAddress)

	v.SetDefault("timeouts.mux_request", d.Timeouts.MuxRequest)
	v.SetDefault("timeouts.lockdown_request", d.Timeouts.LockdownRequest)
	v.SetDefault("timeouts.handshake_overall", d.Timeouts.HandshakeOverall)

	v.SetDefault("pairstore.dir", d.PairStore.Dir)
}
