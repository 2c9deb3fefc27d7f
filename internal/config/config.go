package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/databroker/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DATABROKER"

// Script roles.
const (
	RoleProducer = "producer"
	RoleReceiver = "receiver"
)

// Receiver script delivery modes.
const (
	ModeSync      = "sync"
	ModeAsync     = "async"
	ModeTimed     = "timed"
	ModeTriggered = "triggered"
)

// Config holds all application configuration.
type Config struct {
	Broker  BrokerConfig   `toml:"broker" yaml:"broker"`
	Logging LoggingConfig  `toml:"logging" yaml:"logging"`
	Metrics MetricsConfig  `toml:"metrics" yaml:"metrics"`
	Console ConsoleConfig  `toml:"console" yaml:"console"`
	Scripts []ScriptConfig `toml:"scripts" yaml:"scripts" ignored:"true"`
}

// BrokerConfig tunes the broker goroutines.
type BrokerConfig struct {
	DispatchIdle     Duration `toml:"dispatch_idle" yaml:"dispatch_idle" split_words:"true"`
	RealtimeInterval Duration `toml:"realtime_interval" yaml:"realtime_interval" split_words:"true"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `toml:"level" yaml:"level"`
	Development bool   `toml:"development" yaml:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
}

// ConsoleConfig controls the text console.
type ConsoleConfig struct {
	Messages bool     `toml:"messages" yaml:"messages"`
	Watch    []string `toml:"watch" yaml:"watch"`
	JSON     bool     `toml:"json" yaml:"json"`
}

// ScriptConfig describes one Lua plugin.
type ScriptConfig struct {
	Path    string `toml:"path" yaml:"path"`
	Role    string `toml:"role" yaml:"role"`
	Mode    string `toml:"mode" yaml:"mode"`
	Group   string `toml:"group" yaml:"group"`
	Name    string `toml:"name" yaml:"name"`
	Timer   string `toml:"timer" yaml:"timer"`
	Trigger string `toml:"trigger" yaml:"trigger"`
	Period  int64  `toml:"period" yaml:"period"`
	Param   int    `toml:"param" yaml:"param"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			DispatchIdle:     Duration(100 * time.Millisecond),
			RealtimeInterval: Duration(10 * time.Millisecond),
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Addr: ":9102"},
		Console: ConsoleConfig{Messages: true},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path or a missing file yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from DATABROKER_* environment variables. Unset
// variables leave fields untouched.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	return nil
}

func decodeFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(raw, cfg); err != nil {
			pe := &ParseError{Path: path, Err: err}
			var de *toml.DecodeError
			if errors.As(err, &de) {
				pe.Line, pe.Column = de.Position()
			}
			return pe
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return &ParseError{Path: path, Err: err}
		}
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.Broker.DispatchIdle <= 0 {
		return invalid("broker.dispatch_idle must be positive")
	}
	if c.Broker.RealtimeInterval <= 0 {
		return invalid("broker.realtime_interval must be positive")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level: %v", err)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return invalid("metrics.addr is required when metrics are enabled")
	}
	for i, s := range c.Scripts {
		if err := s.validate(); err != nil {
			return fmt.Errorf("scripts[%d]: %w", i, err)
		}
	}
	return nil
}

func (s ScriptConfig) validate() error {
	if s.Path == "" {
		return invalid("path is required")
	}
	if s.Group == "" || s.Name == "" {
		return invalid("group and name are required")
	}
	switch s.Role {
	case RoleProducer:
		if s.Timer == "" {
			return invalid("producer scripts need a timer")
		}
	case RoleReceiver:
		switch s.ReceiverMode() {
		case ModeSync, ModeAsync:
		case ModeTimed:
			if s.Timer == "" {
				return invalid("timed receivers need a timer")
			}
		case ModeTriggered:
			if s.Trigger == "" {
				return invalid("triggered receivers need a trigger")
			}
		default:
			return invalid("unknown receiver mode %q", s.Mode)
		}
	default:
		return invalid("unknown role %q", s.Role)
	}
	return nil
}

// ReceiverMode returns the configured mode, async when unset.
func (s ScriptConfig) ReceiverMode() string {
	if s.Mode == "" {
		return ModeAsync
	}
	return s.Mode
}
