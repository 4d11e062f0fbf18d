package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

const (
	StoreDriverMongo    = "mongo"
	StoreDriverPostgres = "postgres"
	StoreDriverBolt     = "bolt"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Environment string `toml:"-"`

	Host string `toml:"host" env:"HOST, overwrite"`
	Port int    `toml:"port" env:"PORT, overwrite"`

	// store
	StoreDriver  string `toml:"store_driver" env:"STORE_DRIVER, overwrite"`
	DatabaseURL  string `toml:"database_url" env:"DATABASE_URL, overwrite"`
	DatabaseName string `toml:"database_name" env:"DATABASE_NAME, overwrite"`
	BoltPath     string `toml:"bolt_path" env:"BOLT_PATH, overwrite"`
	// only used in the test environment, replaces DatabaseURL when set
	TestDatabaseURL string `toml:"-" env:"TEST_DATABASE_URL"`

	// logging
	LogLevel      string `toml:"log_level" env:"LOG_LEVEL, overwrite"`
	LogsPath      string `toml:"logs_path" env:"LOGS_PATH, overwrite"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port" env:"METRICS_PORT, overwrite"`

	// redis, used for rate limiting; empty host means local rate limiting
	RedisHost string `toml:"redis_host" env:"REDIS_HOST, overwrite"`
	RedisPort string `toml:"redis_port" env:"REDIS_PORT, overwrite"`
	// 0 disables rate limiting of the mutating endpoints
	RateLimitAllowedPerMin int `toml:"rate_limit_allowed_per_min"`

	// origins allowed to call the API from a browser, "*" allows all
	CorsAllowedOrigins []string `toml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS, overwrite"`

	GopsEnabled bool `toml:"gops_enabled"`
}

type Toml struct {
	Development *Config
	Production  *Config
	Test        *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	case "test":
		cfg = t.Test
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config for env: %s", env)
	}
	return cfg, nil
}

// Load reads the TOML config of the given environment, and applies the
// environment variable overrides on top of it.
func Load(ctx context.Context, env, path string) (*Config, error) {
	var tomlCfg Toml
	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlCfg.Get(env)
	if err != nil {
		return nil, err
	}
	cfg.Environment = strings.ToLower(env)

	if err := cfg.applyEnv(ctx); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(ctx context.Context) error {
	if err := envconfig.Process(ctx, c); err != nil {
		return fmt.Errorf("process env: %w", err)
	}
	if c.Environment == "test" && c.TestDatabaseURL != "" {
		c.DatabaseURL = c.TestDatabaseURL
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.StoreDriver == "" {
		c.StoreDriver = StoreDriverMongo
	}
	if c.DatabaseName == "" {
		c.DatabaseName = "blogposts"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
	if c.RedisHost != "" && c.RedisPort == "" {
		c.RedisPort = "6379"
	}
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.RateLimitAllowedPerMin < 0 {
		return errors.New("rate_limit_allowed_per_min must not be negative")
	}
	// empty falls back to info
	switch strings.ToLower(c.LogLevel) {
	case "", "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("unknown log_level: %s", c.LogLevel)
	}

	switch c.StoreDriver {
	case StoreDriverMongo, StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url required for store driver %s", c.StoreDriver)
		}
	case StoreDriverBolt:
		if c.BoltPath == "" {
			return errors.New("bolt_path required for store driver bolt")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %s", c.StoreDriver)
	}

	return nil
}
