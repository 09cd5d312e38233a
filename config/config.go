// Package config loads the application configuration from an optional YAML
// file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Providers lists the accepted provider names.
var Providers = []string{"claude", "anthropic", "openai", "groq", "gemini", "google"}

type ProviderConfig struct {
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
	Table    string `yaml:"table"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// StoreConfig selects and configures the conversation store.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
}

// LLMConfig is the retry policy for generation calls.
type LLMConfig struct {
	Timeout    time.Duration   `yaml:"timeout"`
	MaxRetries int             `yaml:"max_retries"`
	Backoff    []time.Duration `yaml:"backoff"`
}

type DispatcherConfig struct {
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	// MaxPerHandler bounds concurrent invocations of one handler. Zero
	// disables the limit.
	MaxPerHandler    int `yaml:"max_per_handler"`
	MaxLoopbackDepth int `yaml:"max_loopback_depth"`
}

type MemoryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxPinned    int           `yaml:"max_pinned"`
	MaxEphemeral int           `yaml:"max_ephemeral"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	// Encoding is the tiktoken encoding used to count prompt tokens. Empty
	// uses a character estimate.
	Encoding string `yaml:"encoding"`
}

type TelemetryConfig struct {
	Disable     bool    `yaml:"disable"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Config is the full application configuration.
type Config struct {
	DataDir        string           `yaml:"data_dir"`
	MaxConcurrency int              `yaml:"max_concurrency"`
	Provider       ProviderConfig   `yaml:"provider"`
	Store          StoreConfig      `yaml:"store"`
	LLM            LLMConfig        `yaml:"llm"`
	Dispatcher     DispatcherConfig `yaml:"dispatcher"`
	Memory         MemoryConfig     `yaml:"memory"`
	Telemetry      TelemetryConfig  `yaml:"telemetry"`
}

// Default returns the local development configuration.
func Default() *Config {
	return &Config{
		DataDir:        "data",
		MaxConcurrency: 10,
		Provider:       ProviderConfig{Name: "claude"},
		Store: StoreConfig{
			Backend: StoreMemory,
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "travel:conversation:"},
			Postgres: PostgresConfig{
				Host: "localhost", Port: 5432, User: "postgres", Password: "postgres",
				DBName: "travel_agent", SSLMode: "disable", Table: "conversations",
			},
			Mongo: MongoConfig{URI: "mongodb://localhost:27017", Database: "travel_agent", Collection: "conversations"},
		},
		LLM: LLMConfig{
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			Backoff:    []time.Duration{5 * time.Second, 15 * time.Second},
		},
		Dispatcher: DispatcherConfig{HandlerTimeout: 3 * time.Minute, MaxLoopbackDepth: 5},
		Memory:     MemoryConfig{Enabled: true, MaxPinned: 10, MaxEphemeral: 25, StaleAfter: 90 * 24 * time.Hour},
		Telemetry:  TelemetryConfig{ServiceName: "travel-agent"},
	}
}

// Load reads path over the defaults, then applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apiKeyEnv maps provider names to the variable holding their key.
var apiKeyEnv = map[string]string{
	"claude":    "ANTHROPIC_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"groq":      "GROQ_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"google":    "GEMINI_API_KEY",
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("TRAVEL_PROVIDER", &c.Provider.Name)
	str("TRAVEL_MODEL", &c.Provider.Model)
	if env, ok := apiKeyEnv[strings.ToLower(c.Provider.Name)]; ok {
		str(env, &c.Provider.APIKey)
	}
	str("TRAVEL_DATA_DIR", &c.DataDir)
	str("TRAVEL_STORE", &c.Store.Backend)
	num("TRAVEL_MAX_CONCURRENCY", &c.MaxConcurrency)

	str("REDIS_ADDR", &c.Store.Redis.Addr)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	num("REDIS_DB", &c.Store.Redis.DB)

	str("POSTGRES_HOST", &c.Store.Postgres.Host)
	num("POSTGRES_PORT", &c.Store.Postgres.Port)
	str("POSTGRES_USER", &c.Store.Postgres.User)
	str("POSTGRES_PASSWORD", &c.Store.Postgres.Password)
	str("POSTGRES_DB", &c.Store.Postgres.DBName)
	str("POSTGRES_SSLMODE", &c.Store.Postgres.SSLMode)

	str("MONGODB_URI", &c.Store.Mongo.URI)
	str("MONGODB_DATABASE", &c.Store.Mongo.Database)

	dur("LLM_TIMEOUT", &c.LLM.Timeout)
	num("LLM_MAX_RETRIES", &c.LLM.MaxRetries)
	dur("TRAVEL_HANDLER_TIMEOUT", &c.Dispatcher.HandlerTimeout)
	num("TRAVEL_MAX_PER_HANDLER", &c.Dispatcher.MaxPerHandler)

	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	if _, ok := lookup("OTEL_SDK_DISABLED"); ok {
		c.Telemetry.Disable = true
	}
	return errors.Join(errs...)
}

// Validate checks the configuration, including the selected store only.
func (c *Config) Validate() error {
	v := NewValidator()
	v.RequireNonEmpty("data_dir", c.DataDir)
	v.RequirePositive("max_concurrency", c.MaxConcurrency)
	v.ValidateOneOf("store.backend", c.Store.Backend, StoreMemory, StoreRedis, StorePostgres, StoreMongo)
	v.RequirePositiveDuration("llm.timeout", c.LLM.Timeout)
	v.RequirePositive("llm.max_retries", c.LLM.MaxRetries)
	v.RequirePositiveDuration("dispatcher.handler_timeout", c.Dispatcher.HandlerTimeout)
	v.RequireNonNegative("dispatcher.max_per_handler", c.Dispatcher.MaxPerHandler)
	v.ValidateRange("dispatcher.max_loopback_depth", c.Dispatcher.MaxLoopbackDepth, 1, 20)
	v.ValidateFloatRange("telemetry.sample_ratio", c.Telemetry.SampleRatio, 0, 1)
	if c.Memory.Enabled {
		v.RequirePositiveDuration("memory.stale_after", c.Memory.StaleAfter)
	}

	errs := []error{v.Error(), ValidateProviderConfig(c.Provider)}
	switch c.Store.Backend {
	case StoreRedis:
		errs = append(errs, ValidateRedisConfig(c.Store.Redis))
	case StorePostgres:
		errs = append(errs, ValidatePostgresConfig(c.Store.Postgres))
	case StoreMongo:
		errs = append(errs, ValidateMongoDBConfig(c.Store.Mongo))
	}
	return errors.Join(errs...)
}
