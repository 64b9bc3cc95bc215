package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Session token backends.
const (
	StoreFile     = "file"
	StoreValkey   = "valkey"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config aggregates runtime configuration used across the client.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	API        APIConfig        `yaml:"api"`
	Session    SessionConfig    `yaml:"session"`
	Generation GenerationConfig `yaml:"generation"`
	Cache      CacheConfig      `yaml:"cache"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// HTTPConfig controls the local server the UI talks to.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the limiter in front of the credential endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// APIConfig points at the remote meal planning service.
type APIConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	AuthScheme    string        `yaml:"authScheme"`
	Timeout       time.Duration `yaml:"timeout"`
	PublicBaseURL string        `yaml:"publicBaseUrl"`
}

// SessionConfig selects where the token is persisted.
type SessionConfig struct {
	Store    string         `yaml:"store"`
	FilePath string         `yaml:"filePath"`
	TokenKey string         `yaml:"tokenKey"`
	Valkey   ValkeyConfig   `yaml:"valkey"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// GenerationConfig drives the generate-then-poll workflow.
type GenerationConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CacheConfig controls the plan cache.
type CacheConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Valkey ValkeyConfig  `yaml:"valkey"`
}

// ArchiveConfig contains the S3-compatible bucket for delivered plans.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// ValkeyConfig contains connection information for Valkey.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// Load reads configuration from .env, a YAML file and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("API_AUTH_SCHEME"); v != "" {
		cfg.API.AuthScheme = v
	}
	if v := os.Getenv("API_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = parsed
		}
	}
	if v := os.Getenv("API_PUBLIC_BASE_URL"); v != "" {
		cfg.API.PublicBaseURL = v
	}
	if v := os.Getenv("SESSION_STORE"); v != "" {
		cfg.Session.Store = strings.ToLower(v)
	}
	if v := os.Getenv("SESSION_FILE_PATH"); v != "" {
		cfg.Session.FilePath = v
	}
	if v := os.Getenv("SESSION_TOKEN_KEY"); v != "" {
		cfg.Session.TokenKey = v
	}
	if v := os.Getenv("SESSION_VALKEY_ADDR"); v != "" {
		cfg.Session.Valkey.Addr = v
	}
	if v := os.Getenv("SESSION_POSTGRES_DSN"); v != "" {
		cfg.Session.Postgres.DSN = v
	}
	if v := os.Getenv("GENERATION_POLL_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Generation.PollInterval = parsed
		}
	}
	if v := os.Getenv("GENERATION_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Generation.Timeout = parsed
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = parsed
		}
	}
	if v := os.Getenv("CACHE_VALKEY_ENABLED"); v != "" {
		cfg.Cache.Valkey.Enabled = parseBool(v)
	}
	if v := os.Getenv("CACHE_VALKEY_ADDR"); v != "" {
		cfg.Cache.Valkey.Addr = v
	}
	if v := os.Getenv("ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = parseBool(v)
	}
	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if clean := strings.TrimSpace(part); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      "127.0.0.1:8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
		},
		API: APIConfig{
			BaseURL:    "http://localhost:8000/api",
			AuthScheme: "Token",
			Timeout:    10 * time.Second,
		},
		Session: SessionConfig{
			Store: StoreFile,
			Valkey: ValkeyConfig{
				Prefix: "mealplanner",
			},
			Postgres: PostgresConfig{
				MaxConns: 2,
			},
		},
		Generation: GenerationConfig{
			PollInterval: 3 * time.Second,
			Timeout:      30 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
			Valkey: ValkeyConfig{
				Prefix: "mealplanner",
			},
		},
		Archive: ArchiveConfig{
			Bucket: "meal-plans",
			Region: "auto",
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.baseUrl cannot be empty")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	switch c.Session.Store {
	case StoreFile, StoreMemory:
	case StoreValkey:
		if strings.TrimSpace(c.Session.Valkey.Addr) == "" {
			return errors.New("session.valkey.addr cannot be empty when the valkey store is selected")
		}
	case StorePostgres:
		if strings.TrimSpace(c.Session.Postgres.DSN) == "" {
			return errors.New("session.postgres.dsn cannot be empty when the postgres store is selected")
		}
	default:
		return fmt.Errorf("session.store %q is not one of file, valkey, postgres, memory", c.Session.Store)
	}
	if c.Generation.PollInterval <= 0 {
		return errors.New("generation.pollInterval must be positive")
	}
	if c.Generation.Timeout < c.Generation.PollInterval {
		return errors.New("generation.timeout must be at least one poll interval")
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl cannot be negative")
	}
	if c.Cache.Valkey.Enabled && strings.TrimSpace(c.Cache.Valkey.Addr) == "" {
		return errors.New("cache.valkey.addr cannot be empty when the valkey cache is enabled")
	}
	if c.Archive.Enabled {
		if strings.TrimSpace(c.Archive.Endpoint) == "" || strings.TrimSpace(c.Archive.Bucket) == "" {
			return errors.New("archive.endpoint and archive.bucket are required when the archive is enabled")
		}
	}
	return nil
}
