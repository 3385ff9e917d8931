// Package config loads the YAML configuration file shared by the
// cmd/tcpconnect and cmd/tcplisten entry points.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/minnet/internal/tcpcore"
)

// Config is the on-disk representation of a connection's tunable knobs
// plus the ambient glue (device name, logging level) the CLI needs.
type Config struct {
	DefaultCapacity    int     `yaml:"default_capacity"`
	InitialRetxTimeout uint64  `yaml:"initial_retx_timeout"`
	MaxRetxAttempts    int     `yaml:"max_retx_attempts"`
	FixedISN           *uint32 `yaml:"fixed_isn"`

	Device     string `yaml:"device"`
	LogLevel   string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	d := tcpcore.DefaultConfig()
	return Config{
		DefaultCapacity:    d.DefaultCapacity,
		InitialRetxTimeout: d.InitialRetxTimeout,
		MaxRetxAttempts:    d.MaxRetxAttempts,
		FixedISN:           d.FixedISN,
		LogLevel:           "info",
	}
}

// Load reads and parses a YAML configuration file at path, filling in
// defaults for anything left unset.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// TCPCoreConfig projects the loaded configuration onto a tcpcore.Config.
func (c Config) TCPCoreConfig() tcpcore.Config {
	return tcpcore.Config{
		DefaultCapacity:    c.DefaultCapacity,
		InitialRetxTimeout: c.InitialRetxTimeout,
		MaxRetxAttempts:    c.MaxRetxAttempts,
		FixedISN:           c.FixedISN,
	}
}
