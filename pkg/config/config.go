// Package config loads the configuration of a muscle node.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

// Config is the root node configuration.
type Config struct {
	// Instance is the reference of the instance this node runs, e.g. "micro[3]".
	Instance string `mapstructure:"instance"`

	// Model is the path of the topology file.
	Model string `mapstructure:"model"`

	Log        LogConfig         `mapstructure:"log"`
	Transports []TransportConfig `mapstructure:"transports"`
	Registry   RegistryConfig    `mapstructure:"registry"`
	Shutdown   ShutdownConfig    `mapstructure:"shutdown"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type ShutdownConfig struct {
	// DrainTimeoutMS bounds how long a stopping node waits for receivers to
	// collect their messages. Zero waits forever.
	DrainTimeoutMS int `mapstructure:"drain_timeout_ms"`
}

func (s ShutdownConfig) DrainTimeout() time.Duration {
	return time.Duration(s.DrainTimeoutMS) * time.Millisecond
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Instance: "",
		Model:    "model.yaml",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stderr"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/muscle-node.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Transports: []TransportConfig{{Kind: "tcp"}},
		Registry: RegistryConfig{
			Backend:       "memory",
			Address:       "localhost:6379",
			KeyPrefix:     "muscle",
			WaitTimeoutMS: 60000,
			PollMS:        200,
		},
		Shutdown: ShutdownConfig{DrainTimeoutMS: 30000},
	}
}

// Load reads configuration from path if given, otherwise from muscle.yaml in
// the usual places, then applies environment overrides. Environment variables
// use the prefix MUSCLE with `.` and `-` replaced by `_`, e.g.
// MUSCLE_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MUSCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("instance", cfg.Instance)
	v.SetDefault("model", cfg.Model)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("transports", cfg.Transports)
	v.SetDefault("registry.backend", cfg.Registry.Backend)
	v.SetDefault("registry.address", cfg.Registry.Address)
	v.SetDefault("registry.db", cfg.Registry.DB)
	v.SetDefault("registry.key_prefix", cfg.Registry.KeyPrefix)
	v.SetDefault("registry.ttl_ms", cfg.Registry.TTLMS)
	v.SetDefault("registry.wait_timeout_ms", cfg.Registry.WaitTimeoutMS)
	v.SetDefault("registry.poll_ms", cfg.Registry.PollMS)
	v.SetDefault("shutdown.drain_timeout_ms", cfg.Shutdown.DrainTimeoutMS)

	if path == "" {
		path = os.Getenv("MUSCLE_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("muscle")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".muscle"))
		}
	}

	// a missing file is fine; defaults and env still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	c.Instance = strings.TrimSpace(c.Instance)
	if c.Instance != "" {
		if _, err := ref.ParseReference(c.Instance); err != nil {
			return fmt.Errorf("invalid instance: %w", err)
		}
	}

	if len(c.Transports) == 0 {
		return errors.New("at least one transport must be configured")
	}
	for i := range c.Transports {
		c.Transports[i].Kind = strings.ToLower(strings.TrimSpace(c.Transports[i].Kind))
		if c.Transports[i].Kind == "" {
			return fmt.Errorf("transports[%d]: missing kind", i)
		}
	}

	c.Registry.Backend = strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	switch c.Registry.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid registry.backend: %q", c.Registry.Backend)
	}
	if c.Registry.Backend == "redis" && c.Registry.KeyPrefix == "" {
		return errors.New("registry.key_prefix is required for the redis backend")
	}
	if c.Registry.PollMS <= 0 {
		c.Registry.PollMS = 200
	}
	if c.Shutdown.DrainTimeoutMS < 0 {
		return fmt.Errorf("invalid shutdown.drain_timeout_ms: %d", c.Shutdown.DrainTimeoutMS)
	}
	return nil
}

// InstanceRef returns the parsed instance reference. An instance override,
// when non-empty, takes precedence over the configured one.
func (c *Config) InstanceRef(override string) (ref.Reference, error) {
	s := c.Instance
	if override != "" {
		s = override
	}
	if s == "" {
		return ref.Reference{}, errors.New("no instance configured")
	}
	return ref.ParseReference(s)
}
