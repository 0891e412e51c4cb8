package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Limiter   LimiterConfig
	Extractor ExtractorConfig
	Feed      FeedConfig
	Recompute RecomputeConfig
	Metrics   MetricsConfig
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// ConnString builds a PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.DBName,
		sslMode,
	)
}

// LimiterConfig caps calls to the extraction service.
type LimiterConfig struct {
	MaxCalls   int           `mapstructure:"max_calls"`
	TimeWindow time.Duration `mapstructure:"time_window"`
}

// ExtractorConfig defines the text extraction service settings.
type ExtractorConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string
	Timeout      time.Duration
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Catalogue    []string
	Aliases      map[string]string
}

// FeedConfig selects where posts come from.
type FeedConfig struct {
	Kind      string
	URL       string
	Path      string
	Subscribe string
}

// RecomputeConfig controls the periodic ratio rebuild.
type RecomputeConfig struct {
	Interval time.Duration
	OnStart  bool `mapstructure:"on_start"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5001")
	v.SetDefault("server.read_header_timeout", 5*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "appraiser")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "appraiser")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)

	v.SetDefault("limiter.max_calls", 13)
	v.SetDefault("limiter.time_window", 60*time.Second)

	v.SetDefault("extractor.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("extractor.api_key", "")
	v.SetDefault("extractor.model", "gemini-2.0-flash")
	v.SetDefault("extractor.timeout", 30*time.Second)
	v.SetDefault("extractor.max_retries", 3)
	v.SetDefault("extractor.retry_backoff", time.Second)
	v.SetDefault("extractor.catalogue", []string{"GBG", "MÖ", "NSA", "SSK", "VG/H", "T-BAR", "ÖG", "HK"})
	v.SetDefault("extractor.aliases", map[string]string{})

	v.SetDefault("feed.kind", "none")
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.path", "")
	v.SetDefault("feed.subscribe", "")

	v.SetDefault("recompute.interval", 10*time.Minute)
	v.SetDefault("recompute.on_start", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment still apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}

	err = config.Validate()
	return
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return errors.New("database.host is required")
		}
		if c.Database.DBName == "" {
			return errors.New("database.dbname is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("database.port must be between 1 and 65535, got %d", c.Database.Port)
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}

	if c.Limiter.MaxCalls < 1 {
		return errors.New("limiter.max_calls must be >= 1")
	}
	if c.Limiter.TimeWindow <= 0 {
		return errors.New("limiter.time_window must be > 0")
	}

	switch c.Feed.Kind {
	case "none":
	case "websocket":
		if c.Feed.URL == "" {
			return errors.New("feed.url is required for websocket feeds")
		}
	case "file":
		if c.Feed.Path == "" {
			return errors.New("feed.path is required for file feeds")
		}
	default:
		return fmt.Errorf("feed.kind must be none, websocket or file, got %q", c.Feed.Kind)
	}

	if c.Recompute.Interval < 0 {
		return errors.New("recompute.interval must be >= 0")
	}
	return nil
}
