// Package config manages the demo harness's configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete demo harness configuration.
type Config struct {
	Session SessionConfig `koanf:"session"`
	Network NetworkConfig `koanf:"network"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// SessionConfig holds the parameters SessionBuilder needs to start a
// rollback session.
type SessionConfig struct {
	// LocalPlayer is this process's own PlayerId.
	LocalPlayer uint16 `koanf:"local_player"`
	// LocalPort is the UDP port the default transport binds.
	LocalPort uint16 `koanf:"local_port"`
	// RemotePlayers lists "host:port" endpoints for every other
	// participant, in the shared order every peer uses to derive ids.
	RemotePlayers []string `koanf:"remote_players"`
	// StepSize is the fixed logical step every Advance request covers.
	StepSize time.Duration `koanf:"step_size"`
}

// NetworkConfig holds the bad-network simulation parameters applied on top
// of the default UDP transport.
type NetworkConfig struct {
	// Simulate enables the lossy/delaying wrapper. When false, the default
	// UDP transport is used unwrapped.
	Simulate bool `koanf:"simulate"`
	// SuccessChance is the probability a given datagram survives, in [0,1].
	SuccessChance float64 `koanf:"success_chance"`
	// MeanLag is the mean of the Poisson-distributed delay applied to
	// surviving datagrams.
	MeanLag time.Duration `koanf:"mean_lag"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults. The step
// size of 16ms matches the counter demo's 60Hz-ish tick rate; network
// simulation is off by default so a first run talks over a plain socket.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			StepSize: 16 * time.Millisecond,
		},
		Network: NetworkConfig{
			Simulate:      false,
			SuccessChance: 0.4,
			MeanLag:       100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for demo harness
// configuration. Variables are named RBRB_<section>_<key>, e.g.,
// RBRB_SESSION_LOCAL_PORT.
const envPrefix = "RBRB_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (RBRB_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	RBRB_SESSION_LOCAL_PLAYER -> session.local_player
//	RBRB_SESSION_LOCAL_PORT   -> session.local_port
//	RBRB_SESSION_STEP_SIZE    -> session.step_size
//	RBRB_NETWORK_SIMULATE     -> network.simulate
//	RBRB_METRICS_ADDR         -> metrics.addr
//	RBRB_LOG_LEVEL            -> log.level
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// RBRB_SESSION_LOCAL_PORT -> session.local_port (strip prefix,
	// lowercase, first _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms RBRB_SESSION_LOCAL_PORT -> session.local_port.
// Strips the RBRB_ prefix, lowercases, and replaces the first _ (the one
// between section and key) with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"session.local_player":   defaults.Session.LocalPlayer,
		"session.local_port":     defaults.Session.LocalPort,
		"session.step_size":      defaults.Session.StepSize.String(),
		"network.simulate":       defaults.Network.Simulate,
		"network.success_chance": defaults.Network.SuccessChance,
		"network.mean_lag":       defaults.Network.MeanLag.String(),
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidStepSize indicates the step size is not positive.
	ErrInvalidStepSize = errors.New("session.step_size must be > 0")

	// ErrMissingRemotePlayers indicates no remote peers were configured.
	ErrMissingRemotePlayers = errors.New("session.remote_players must not be empty")

	// ErrInvalidRemotePlayerAddr indicates a remote_players entry isn't a
	// parseable host:port.
	ErrInvalidRemotePlayerAddr = errors.New("session.remote_players entry is not a valid host:port")

	// ErrInvalidSuccessChance indicates network.success_chance is outside [0,1].
	ErrInvalidSuccessChance = errors.New("network.success_chance must be within [0, 1]")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Session.StepSize <= 0 {
		return ErrInvalidStepSize
	}

	if len(cfg.Session.RemotePlayers) == 0 {
		return ErrMissingRemotePlayers
	}
	for i, addr := range cfg.Session.RemotePlayers {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("session.remote_players[%d] %q: %w", i, addr, ErrInvalidRemotePlayerAddr)
		}
	}

	if cfg.Network.Simulate && (cfg.Network.SuccessChance < 0 || cfg.Network.SuccessChance > 1) {
		return ErrInvalidSuccessChance
	}

	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
