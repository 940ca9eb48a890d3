// Package config assembles server configuration from CLI flags with an
// optional YAML overlay file, mirroring the rtl_tcp command-line surface.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"hz.tools/sdrtcpd/internal/warning"
)

// Config holds every server-tunable setting. Field names follow the CLI
// flag table; a YAML file overlays these after flag parsing, so a value
// set in the file replaces the flag's value, and fields the file does not
// mention keep their flag or default values.
type Config struct {
	Addr           string  `yaml:"addr"`
	Port           int     `yaml:"port"`
	FrequencyHz    uint32  `yaml:"frequency_hz"`
	GainTenthsDB   int32   `yaml:"gain_tenths_db"`
	SampleRateHz   uint32  `yaml:"samplerate_hz"`
	QueueDepth     int     `yaml:"queue_depth"`
	BiasTee        bool    `yaml:"bias_tee"`
	PPM            int32   `yaml:"ppm"`
	BitWidth       int     `yaml:"bit_width"`
	Verbose        bool    `yaml:"verbose"`
	DeviceIndex    int     `yaml:"device_index"`
	RegisterPort   int     `yaml:"register_port"`
	RegisterPeriod float64 `yaml:"register_period_seconds"`
	MetricsAddr    string  `yaml:"metrics_addr"`
	ConfigFile     string  `yaml:"-"`
}

// Default returns a Config populated with the rtl_tcp defaults.
func Default() Config {
	return Config{
		Addr:           "0.0.0.0",
		Port:           1234,
		FrequencyHz:    100_000_000,
		GainTenthsDB:   0,
		SampleRateHz:   2_048_000,
		QueueDepth:     64,
		BiasTee:        false,
		PPM:            0,
		BitWidth:       8,
		DeviceIndex:    0,
		RegisterPort:   0,
		RegisterPeriod: 0.1,
		MetricsAddr:    "",
	}
}

// ParseFlags registers the CLI flag surface onto fs, binds it to cfg,
// parses args, and applies any -c/--config YAML overlay. fs is exposed
// so tests and cmd/ binaries can reuse pflag.CommandLine or a scoped
// FlagSet.
func ParseFlags(fs *pflag.FlagSet, args []string) (Config, error) {
	cfg := Default()

	fs.StringVarP(&cfg.Addr, "addr", "a", cfg.Addr, "listen address")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "listen port")
	fs.Uint32VarP(&cfg.FrequencyHz, "freq", "f", cfg.FrequencyHz, "center frequency, Hz")
	fs.Int32VarP(&cfg.GainTenthsDB, "gain", "g", cfg.GainTenthsDB, "gain, tenths of a dB")
	fs.Uint32VarP(&cfg.SampleRateHz, "samplerate", "s", cfg.SampleRateHz, "sample rate, Hz")
	fs.IntVarP(&cfg.QueueDepth, "queue-depth", "n", cfg.QueueDepth, "sample queue depth (N_MAX)")
	fs.BoolVarP(&cfg.BiasTee, "bias-tee", "T", cfg.BiasTee, "enable bias-T power")
	fs.Int32VarP(&cfg.PPM, "ppm", "P", cfg.PPM, "frequency correction, parts-per-million")
	fs.IntVarP(&cfg.BitWidth, "bit-width", "W", cfg.BitWidth, "sample bit width: 16, 8 or 4")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "verbose logging")
	fs.IntVar(&cfg.DeviceIndex, "device-index", cfg.DeviceIndex, "device index to open")
	fs.IntVar(&cfg.RegisterPort, "register-port", cfg.RegisterPort, "tuner register reporter port (0 disables)")
	fs.Float64Var(&cfg.RegisterPeriod, "register-period", cfg.RegisterPeriod, "tuner register snapshot period, seconds")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus /metrics listen address (empty disables)")
	fs.StringVarP(&cfg.ConfigFile, "config", "c", "", "optional YAML config overlay")

	// -d was the legacy alias for device index in some rtl_tcp builds.
	var legacyDeviceIndex int
	fs.IntVarP(&legacyDeviceIndex, "device", "d", -1, "deprecated, use --device-index")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if legacyDeviceIndex != -1 {
		warning.Deprecated("-d/--device")
		cfg.DeviceIndex = legacyDeviceIndex
	}

	if cfg.ConfigFile != "" {
		if err := overlayYAML(&cfg, cfg.ConfigFile); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", cfg.ConfigFile, err)
		}
	}

	if cfg.BitWidth != 16 && cfg.BitWidth != 8 && cfg.BitWidth != 4 {
		return Config{}, fmt.Errorf("config: unsupported bit width %d (want 16, 8 or 4)", cfg.BitWidth)
	}

	return cfg, nil
}

func overlayYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// RegisterAddr returns the address RegisterReporter should listen on,
// defaulting to Port+1 when RegisterPort is unset.
func (c Config) RegisterAddr() string {
	port := c.RegisterPort
	if port == 0 {
		port = c.Port + 1
	}
	return fmt.Sprintf("%s:%d", c.Addr, port)
}

// SampleAddr returns the address the sample/control listener should
// bind.
func (c Config) SampleAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}
