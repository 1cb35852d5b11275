// Package config holds the server and simulation settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the cpusched server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (default ~/.cpusched/cpusched.db, ":memory:" for testing)
	TraceFile string `yaml:"trace_file"` // Span output file; empty disables tracing

	Simulation SimulationConfig `yaml:"simulation"`
}

// SimulationConfig bounds a single simulation run.
type SimulationConfig struct {
	// MaxTicks aborts a run that has not drained after this many ticks.
	MaxTicks int `yaml:"max_ticks"`
	// TickInterval paces the loop in wall-clock time. Zero runs flat out;
	// reported times are in ticks either way.
	TickInterval time.Duration `yaml:"tick_interval"`
	// CPU is the processor the simulated scheduler runs on when the
	// workload does not name one. Processes pinned elsewhere are rejected
	// at admission.
	CPU uint32 `yaml:"cpu"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:       ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
		Simulation: DefaultSimulationConfig(),
	}
}

// DefaultSimulationConfig returns sensible defaults.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{MaxTicks: 100_000}
}

// Load reads a YAML config file over the defaults. A missing path yields
// the defaults unchanged.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that all config values are usable.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q: expected text or json", c.LogFormat)
	}
	return c.Simulation.Validate()
}

// Validate checks that the simulation bounds are usable.
func (c SimulationConfig) Validate() error {
	if c.MaxTicks <= 0 {
		return fmt.Errorf("invalid max_ticks %d: must be positive", c.MaxTicks)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("invalid tick_interval %s: cannot be negative", c.TickInterval)
	}
	return nil
}
