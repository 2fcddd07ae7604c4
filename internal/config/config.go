package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"quoteengine/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. QUOTES_DOMESTIC_API_KEY.
const EnvPrefix = "QUOTES"

type Server struct {
	Port           string        `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxSymbols     int           `mapstructure:"max_symbols"`
}

type Engine struct {
	Concurrency  int           `mapstructure:"concurrency"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type Cache struct {
	TTL      time.Duration `mapstructure:"ttl"`
	MaxItems int           `mapstructure:"max_items"`
	Shards   int           `mapstructure:"shards"`
}

// Upstream configures one venue's quote API.
// MinInterval and MaxWait only apply where a shared limiter is installed.
type Upstream struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	// Query is appended to every request. Keys are lowercased by the loader.
	Query       map[string]string `mapstructure:"query"`
	MinInterval time.Duration     `mapstructure:"min_interval"`
	MaxWait     time.Duration     `mapstructure:"max_wait"`
}

// HTTP configures the outbound transport shared by both upstreams.
type HTTP struct {
	UserAgent string `mapstructure:"user_agent"`
	// Headers are sent with every upstream request unless the client sets them itself.
	Headers map[string]string `mapstructure:"headers"`
}

type Venue struct {
	DomesticSuffixes []string `mapstructure:"domestic_suffixes"`
}

type Config struct {
	Server        Server         `mapstructure:"server"`
	Engine        Engine         `mapstructure:"engine"`
	Cache         Cache          `mapstructure:"cache"`
	Domestic      Upstream       `mapstructure:"domestic"`
	International Upstream       `mapstructure:"international"`
	Venue         Venue          `mapstructure:"venue"`
	HTTP          HTTP           `mapstructure:"http"`
	Log           logging.Config `mapstructure:"log"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeout: 15 * time.Second, MaxSymbols: 1000},
		Engine: Engine{
			Concurrency:  3,
			FetchTimeout: 5 * time.Second,
			RetryBackoff: 500 * time.Millisecond,
			MaxAttempts:  2,
		},
		Cache: Cache{TTL: 60 * time.Second, MaxItems: 4096, Shards: 16},
		Domestic: Upstream{
			Endpoint:    "http://localhost:9001",
			MinInterval: 200 * time.Millisecond,
			MaxWait:     2 * time.Second,
		},
		International: Upstream{Endpoint: "http://localhost:9002"},
		Venue:         Venue{DomesticSuffixes: []string{".KS", ".KQ"}},
		HTTP:          HTTP{UserAgent: "quoteengine/1.0"},
		Log:           logging.Config{Level: "info", Format: "json"},
	}
}

// SetDefaults registers Default() on v so env overrides and flags see every key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.max_symbols", d.Server.MaxSymbols)
	v.SetDefault("engine.concurrency", d.Engine.Concurrency)
	v.SetDefault("engine.fetch_timeout", d.Engine.FetchTimeout)
	v.SetDefault("engine.retry_backoff", d.Engine.RetryBackoff)
	v.SetDefault("engine.max_attempts", d.Engine.MaxAttempts)
	v.SetDefault("engine.batch_timeout", d.Engine.BatchTimeout)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_items", d.Cache.MaxItems)
	v.SetDefault("cache.shards", d.Cache.Shards)
	v.SetDefault("domestic.endpoint", d.Domestic.Endpoint)
	v.SetDefault("domestic.api_key", d.Domestic.APIKey)
	v.SetDefault("domestic.min_interval", d.Domestic.MinInterval)
	v.SetDefault("domestic.max_wait", d.Domestic.MaxWait)
	v.SetDefault("international.endpoint", d.International.Endpoint)
	v.SetDefault("international.api_key", d.International.APIKey)
	v.SetDefault("venue.domestic_suffixes", d.Venue.DomesticSuffixes)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// NewViper returns a viper instance with defaults and QUOTES_* env binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a JSON or YAML config from path. If path is empty, config.json in the
// working directory is used when present; a missing file yields defaults.
// Environment variables override file values.
func Load(path string) (Config, error) {
	return LoadWith(NewViper(), path)
}

// LoadWith is Load on a caller-prepared viper, e.g. one with bound flags.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return Default(), fmt.Errorf("read config: %w", err)
			}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Engine.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.concurrency must be >= 1, got %d", c.Engine.Concurrency))
	}
	if c.Engine.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.fetch_timeout must be positive"))
	}
	if c.Engine.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("engine.retry_backoff must not be negative"))
	}
	if c.Engine.MaxAttempts < 1 || c.Engine.MaxAttempts > 2 {
		errs = append(errs, fmt.Errorf("engine.max_attempts must be 1 or 2, got %d", c.Engine.MaxAttempts))
	}
	if c.Engine.BatchTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.batch_timeout must not be negative"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	if c.Cache.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("cache.max_items must be >= 1"))
	}
	if c.Domestic.Endpoint == "" || c.International.Endpoint == "" {
		errs = append(errs, fmt.Errorf("domestic.endpoint and international.endpoint are required"))
	}
	if c.Server.MaxSymbols < 1 {
		errs = append(errs, fmt.Errorf("server.max_symbols must be >= 1"))
	}
	return errors.Join(errs...)
}
