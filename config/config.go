package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	null "gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/wasm"
)

const (
	DefaultMaxCallDepth           = 1000
	DefaultMaxInterpretedRunCount = 8
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "console"
)

type Config struct {
	MaxCallDepth     null.Int `json:"maxCallDepth" envconfig:"LAZYWASM_MAX_CALL_DEPTH"`
	MemoryLimitPages null.Int `json:"memoryLimitPages" envconfig:"LAZYWASM_MEMORY_LIMIT_PAGES"`

	NativeEnabled          null.Bool `json:"nativeEnabled" envconfig:"LAZYWASM_NATIVE_ENABLED"`
	ForceNative            null.Bool `json:"forceNative" envconfig:"LAZYWASM_FORCE_NATIVE"`
	MaxInterpretedRunCount null.Int  `json:"maxInterpretedRunCount" envconfig:"LAZYWASM_MAX_INTERPRETED_RUN_COUNT"`

	LogLevel  null.String `json:"logLevel" envconfig:"LAZYWASM_LOG_LEVEL"`
	LogFormat null.String `json:"logFormat" envconfig:"LAZYWASM_LOG_FORMAT"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxCallDepth:           null.IntFrom(DefaultMaxCallDepth),
		MemoryLimitPages:       null.IntFrom(0),
		NativeEnabled:          null.BoolFrom(true),
		ForceNative:            null.BoolFrom(false),
		MaxInterpretedRunCount: null.IntFrom(DefaultMaxInterpretedRunCount),
		LogLevel:               null.StringFrom(DefaultLogLevel),
		LogFormat:              null.StringFrom(DefaultLogFormat),
	}
}

// Apply returns c with every valid field of cfg copied over it.
func (c Config) Apply(cfg Config) Config {
	if cfg.MaxCallDepth.Valid {
		c.MaxCallDepth = cfg.MaxCallDepth
	}
	if cfg.MemoryLimitPages.Valid {
		c.MemoryLimitPages = cfg.MemoryLimitPages
	}
	if cfg.NativeEnabled.Valid {
		c.NativeEnabled = cfg.NativeEnabled
	}
	if cfg.ForceNative.Valid {
		c.ForceNative = cfg.ForceNative
	}
	if cfg.MaxInterpretedRunCount.Valid {
		c.MaxInterpretedRunCount = cfg.MaxInterpretedRunCount
	}
	if cfg.LogLevel.Valid {
		c.LogLevel = cfg.LogLevel
	}
	if cfg.LogFormat.Valid {
		c.LogFormat = cfg.LogFormat
	}
	return c
}

// Validate reports the first setting that is out of range.
func (c Config) Validate() error {
	if c.MaxCallDepth.Valid && c.MaxCallDepth.Int64 <= 0 {
		return fmt.Errorf("maxCallDepth must be positive, got %d", c.MaxCallDepth.Int64)
	}
	if c.MemoryLimitPages.Valid {
		if p := c.MemoryLimitPages.Int64; p < 0 || uint64(p) > wasm.MemoryMaxPages32 {
			return fmt.Errorf("memoryLimitPages must be in [0, %d], got %d", wasm.MemoryMaxPages32, p)
		}
	}
	if c.MaxInterpretedRunCount.Valid && c.MaxInterpretedRunCount.Int64 < -1 {
		return fmt.Errorf("maxInterpretedRunCount must be -1 or more, got %d", c.MaxInterpretedRunCount.Int64)
	}
	if c.ForceNative.Bool && c.NativeEnabled.Valid && !c.NativeEnabled.Bool {
		return fmt.Errorf("forceNative requires nativeEnabled")
	}
	if c.LogLevel.Valid {
		if _, err := zapcore.ParseLevel(c.LogLevel.String); err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
	}
	if c.LogFormat.Valid {
		switch c.LogFormat.String {
		case "console", "json":
		default:
			return fmt.Errorf("logFormat must be console or json, got %q", c.LogFormat.String)
		}
	}
	return nil
}

// EngineConfig converts the consolidated settings into engine options.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		MaxCallDepth:           int(c.MaxCallDepth.Int64),
		MemoryLimitPages:       uint32(c.MemoryLimitPages.Int64),
		NativeEnabled:          c.NativeEnabled.Bool,
		ForceNative:            c.ForceNative.Bool,
		MaxInterpretedRunCount: int(c.MaxInterpretedRunCount.Int64),
	}
}

// ReadFile reads a YAML (or JSON, which is YAML) config file. A missing file
// yields an empty config.
func ReadFile(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// The null types only know JSON, so route the YAML document through it.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(doc) == 0 {
		return Config{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	var conf Config
	if err := json.Unmarshal(raw, &conf); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return conf, nil
}

// ReadEnv reads LAZYWASM_* variables through lookup.
func ReadEnv(lookup func(string) (string, bool)) (Config, error) {
	var conf Config
	if err := envconfig.Process("", &conf, lookup); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	return conf, nil
}

// Load consolidates defaults, the file at path (if path is not empty), the
// environment and flags, then validates the result.
func Load(fs afero.Fs, path string, lookup func(string) (string, bool), flags *pflag.FlagSet) (Config, error) {
	conf := Default()

	if path != "" {
		fileConf, err := ReadFile(fs, path)
		if err != nil {
			return Config{}, err
		}
		conf = conf.Apply(fileConf)
	}

	if lookup != nil {
		envConf, err := ReadEnv(lookup)
		if err != nil {
			return Config{}, err
		}
		conf = conf.Apply(envConf)
	}

	if flags != nil {
		flagConf, err := FromFlags(flags)
		if err != nil {
			return Config{}, err
		}
		conf = conf.Apply(flagConf)
	}

	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}
