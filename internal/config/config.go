// Package config loads the survey domain settings from survey.yaml and
// SURVEY_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joeblew999/plat-survey/internal/proximity"
)

// Config holds the domain settings. Listen address and data directory come
// from the command-line options instead.
type Config struct {
	Proximity ProximityConfig `mapstructure:"proximity" json:"proximity" yaml:"proximity"`
	Render    RenderConfig    `mapstructure:"render" json:"render" yaml:"render"`
	Archive   ArchiveConfig   `mapstructure:"archive" json:"archive" yaml:"archive"`
	Fetch     FetchConfig     `mapstructure:"fetch" json:"fetch" yaml:"fetch"`
	Store     StoreConfig     `mapstructure:"store" json:"store" yaml:"store"`
	Notify    NotifyConfig    `mapstructure:"notify" json:"notify" yaml:"notify"`
}

type ProximityConfig struct {
	ThresholdMeters float64 `mapstructure:"threshold_meters" json:"thresholdMeters" yaml:"threshold_meters"`
	Mode            string  `mapstructure:"mode" json:"mode" yaml:"mode"`
}

type RenderConfig struct {
	PaddingPx    int    `mapstructure:"padding_px" json:"paddingPx" yaml:"padding_px"`
	TemplatesDir string `mapstructure:"templates_dir" json:"templatesDir,omitempty" yaml:"templates_dir"`
}

type ArchiveConfig struct {
	MaxMarkupBytes int64 `mapstructure:"max_markup_bytes" json:"maxMarkupBytes" yaml:"max_markup_bytes"`
}

type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	ProxyTemplate string        `mapstructure:"proxy_template" json:"proxyTemplate,omitempty" yaml:"proxy_template"`
	MaxBytes      int64         `mapstructure:"max_bytes" json:"maxBytes" yaml:"max_bytes"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" json:"driver" yaml:"driver"`
	RedisURL    string `mapstructure:"redis_url" json:"-" yaml:"redis_url"`
	KeyPrefix   string `mapstructure:"key_prefix" json:"keyPrefix,omitempty" yaml:"key_prefix"`
	PostgresDSN string `mapstructure:"postgres_dsn" json:"-" yaml:"postgres_dsn"`
}

type NotifyConfig struct {
	NATSURL   string `mapstructure:"nats_url" json:"-" yaml:"nats_url"`
	JetStream bool   `mapstructure:"jetstream" json:"jetstream" yaml:"jetstream"`
}

// Load reads the optional config file and applies SURVEY_* overrides.
// path may name a file; empty searches ./survey.yaml and ./configs/survey.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("proximity.threshold_meters", proximity.DefaultThresholdMeters)
	v.SetDefault("proximity.mode", string(proximity.ModeReal))
	v.SetDefault("render.padding_px", 20)
	v.SetDefault("render.templates_dir", "")
	v.SetDefault("archive.max_markup_bytes", 64<<20)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.proxy_template", "")
	v.SetDefault("fetch.max_bytes", 128<<20)
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.redis_url", "redis://127.0.0.1:6379/0")
	v.SetDefault("store.key_prefix", "survey:completed:")
	v.SetDefault("store.postgres_dsn", "postgres://survey@localhost:5432/survey?sslmode=disable")
	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.jetstream", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("survey")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		_ = v.ReadInConfig() // OK if missing
	}

	// SURVEY_PROXIMITY_MODE -> proximity.mode
	v.SetEnvPrefix("SURVEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	var errs []string

	if c.Proximity.ThresholdMeters <= 0 {
		errs = append(errs, fmt.Sprintf("proximity.threshold_meters must be positive, got %v", c.Proximity.ThresholdMeters))
	}
	if _, err := proximity.ParseMode(c.Proximity.Mode); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Render.PaddingPx < 0 {
		errs = append(errs, "render.padding_px must not be negative")
	}
	if c.Archive.MaxMarkupBytes <= 0 {
		errs = append(errs, "archive.max_markup_bytes must be positive")
	}
	switch strings.ToLower(c.Store.Driver) {
	case "memory", "file", "duckdb", "redis", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be memory, file, duckdb, redis or postgres, got %q", c.Store.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Mode returns the parsed proximity mode.
func (c *Config) Mode() proximity.Mode {
	m, _ := proximity.ParseMode(c.Proximity.Mode)
	return m
}
