package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the ppbot application.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Telegram  TelegramConfig  `toml:"telegram"`
	API       APIConfig       `toml:"api"`
	Relay     RelayConfig     `toml:"relay"`
	Cache     CacheConfig     `toml:"cache"`
	Session   SessionConfig   `toml:"session"`
	Redis     RedisConfig     `toml:"redis"`
	Database  DatabaseConfig  `toml:"database"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	Env             string        `toml:"env"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type TelegramConfig struct {
	Token string `toml:"token"`
	// ChatID receives relayed postbacks.
	ChatID      int64 `toml:"chat_id"`
	PollTimeout int   `toml:"poll_timeout"`
	Debug       bool  `toml:"debug"`

	// AllowedChats may use the bot. Empty means ChatID only, or everyone
	// when ChatID is unset too.
	AllowedChats []int64 `toml:"allowed_chats"`
}

// Allowed returns the chats permitted to use the bot, nil for everyone.
func (t TelegramConfig) Allowed() []int64 {
	if len(t.AllowedChats) > 0 {
		return t.AllowedChats
	}
	if t.ChatID != 0 {
		return []int64{t.ChatID}
	}
	return nil
}

// APIConfig configures the upstream statistics API client.
type APIConfig struct {
	BaseURL        string        `toml:"base_url"`
	Key            string        `toml:"key"`
	KeyHeader      string        `toml:"key_header"`
	Currency       string        `toml:"currency"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	PerPage        int           `toml:"per_page"`
	MaxPages       int           `toml:"max_pages"`
	Goals          GoalsConfig   `toml:"goals"`
}

// GoalsConfig maps the tracked conversion kinds to upstream goal keys.
type GoalsConfig struct {
	Registration  string `toml:"registration"`
	FirstDeposit  string `toml:"first_deposit"`
	RepeatDeposit string `toml:"repeat_deposit"`
}

// RelayConfig configures the inbound postback relay.
type RelayConfig struct {
	Enabled bool   `toml:"enabled"`
	APIKey  string `toml:"api_key"`
	Path    string `toml:"path"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend  string        `toml:"backend"`
	TTL      time.Duration `toml:"ttl"`
	Capacity int           `toml:"capacity"`
}

type SessionConfig struct {
	IdleTTL time.Duration `toml:"idle_ttl"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type DatabaseConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int    `toml:"max_conns"`
	MinConns int    `toml:"min_conns"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RateLimitConfig struct {
	Enabled bool    `toml:"enabled"`
	RPS     float64 `toml:"rps"`
	Burst   int     `toml:"burst"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			Env:             "development",
			ShutdownTimeout: 30 * time.Second,
		},
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		API: APIConfig{
			KeyHeader:      "API-KEY",
			Currency:       "USD",
			RequestTimeout: 15 * time.Second,
			PerPage:        500,
			MaxPages:       100,
			Goals: GoalsConfig{
				Registration:  "registration",
				FirstDeposit:  "first_deposit",
				RepeatDeposit: "repeat_deposit",
			},
		},
		Relay: RelayConfig{
			Enabled: true,
			Path:    "/postback",
		},
		Cache: CacheConfig{
			Backend:  "memory",
			TTL:      time.Hour,
			Capacity: 20,
		},
		Session: SessionConfig{
			IdleTTL: 24 * time.Hour,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "ppbot",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "ppbot",
			DBName:   "ppbot",
			SSLMode:  "disable",
			MaxConns: 5,
			MinConns: 1,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   40,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "ppbot",
		},
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (skipped when path is empty or the file does not exist), then environment
// variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("PPBOT_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	addr := cfg.Server.Addr
	if port := getEnv("PORT", ""); port != "" {
		addr = ":" + port
	}
	cfg.Server.Addr = getEnv("PPBOT_HTTP_ADDR", addr)
	cfg.Server.Env = getEnv("PPBOT_ENV", cfg.Server.Env)
	cfg.Server.ShutdownTimeout = getDurationEnv("PPBOT_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Telegram.Token = getEnv("TELEGRAM_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.ChatID = getInt64Env("TELEGRAM_CHAT_ID", cfg.Telegram.ChatID)
	cfg.Telegram.PollTimeout = getIntEnv("PPBOT_TELEGRAM_POLL_TIMEOUT", cfg.Telegram.PollTimeout)
	cfg.Telegram.Debug = getBoolEnv("PPBOT_TELEGRAM_DEBUG", cfg.Telegram.Debug)
	cfg.Telegram.AllowedChats = getInt64ListEnv("PPBOT_TELEGRAM_ALLOWED_CHATS", cfg.Telegram.AllowedChats)

	// PP_API_KEY authenticates both directions unless PPBOT_API_KEY splits them.
	cfg.Relay.APIKey = getEnv("PP_API_KEY", cfg.Relay.APIKey)
	cfg.Relay.Enabled = getBoolEnv("PPBOT_RELAY_ENABLED", cfg.Relay.Enabled)
	cfg.Relay.Path = getEnv("PPBOT_RELAY_PATH", cfg.Relay.Path)

	cfg.API.BaseURL = strings.TrimRight(getEnv("PPBOT_API_URL", cfg.API.BaseURL), "/")
	apiKey := cfg.API.Key
	if apiKey == "" {
		apiKey = cfg.Relay.APIKey
	}
	cfg.API.Key = getEnv("PPBOT_API_KEY", apiKey)
	cfg.API.KeyHeader = getEnv("PPBOT_API_KEY_HEADER", cfg.API.KeyHeader)
	cfg.API.Currency = getEnv("PPBOT_API_CURRENCY", cfg.API.Currency)
	cfg.API.RequestTimeout = getDurationEnv("PPBOT_API_TIMEOUT", cfg.API.RequestTimeout)
	cfg.API.PerPage = getIntEnv("PPBOT_API_PER_PAGE", cfg.API.PerPage)
	cfg.API.MaxPages = getIntEnv("PPBOT_API_MAX_PAGES", cfg.API.MaxPages)
	cfg.API.Goals.Registration = getEnv("PPBOT_GOAL_REGISTRATION", cfg.API.Goals.Registration)
	cfg.API.Goals.FirstDeposit = getEnv("PPBOT_GOAL_FIRST_DEPOSIT", cfg.API.Goals.FirstDeposit)
	cfg.API.Goals.RepeatDeposit = getEnv("PPBOT_GOAL_REPEAT_DEPOSIT", cfg.API.Goals.RepeatDeposit)

	cfg.Cache.Backend = getEnv("PPBOT_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = getDurationEnv("PPBOT_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.Capacity = getIntEnv("PPBOT_CACHE_CAPACITY", cfg.Cache.Capacity)
	cfg.Session.IdleTTL = getDurationEnv("PPBOT_SESSION_IDLE_TTL", cfg.Session.IdleTTL)

	cfg.Redis.Addr = getEnv("PPBOT_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("PPBOT_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getIntEnv("PPBOT_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Prefix = getEnv("PPBOT_REDIS_PREFIX", cfg.Redis.Prefix)

	cfg.Database.Enabled = getBoolEnv("PPBOT_DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnv("PPBOT_DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getIntEnv("PPBOT_DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("PPBOT_DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("PPBOT_DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("PPBOT_DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("PPBOT_DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxConns = getIntEnv("PPBOT_DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getIntEnv("PPBOT_DB_MIN_CONNS", cfg.Database.MinConns)

	cfg.RateLimit.Enabled = getBoolEnv("PPBOT_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RPS = getFloatEnv("PPBOT_RATE_LIMIT_RPS", cfg.RateLimit.RPS)
	cfg.RateLimit.Burst = getIntEnv("PPBOT_RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	cfg.Log.Level = getEnv("PPBOT_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("PPBOT_LOG_FORMAT", cfg.Log.Format)

	cfg.Metrics.Enabled = getBoolEnv("PPBOT_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Path = getEnv("PPBOT_METRICS_PATH", cfg.Metrics.Path)
	cfg.Metrics.Namespace = getEnv("PPBOT_METRICS_NAMESPACE", cfg.Metrics.Namespace)
}

// ValidateAPI checks the settings needed to query the statistics API.
func (c *Config) ValidateAPI() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("PPBOT_API_URL is required")
	}
	if c.API.Key == "" {
		return fmt.Errorf("PPBOT_API_KEY or PP_API_KEY is required")
	}
	if c.API.PerPage <= 0 {
		return fmt.Errorf("api per_page must be positive, got %d", c.API.PerPage)
	}
	if c.API.MaxPages <= 0 {
		return fmt.Errorf("api max_pages must be positive, got %d", c.API.MaxPages)
	}
	return nil
}

// Validate checks that everything the serve command needs is present.
func (c *Config) Validate() error {
	if err := c.ValidateAPI(); err != nil {
		return err
	}
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.Relay.Enabled {
		if c.Relay.APIKey == "" {
			return fmt.Errorf("PP_API_KEY is required when the postback relay is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("TELEGRAM_CHAT_ID is required when the postback relay is enabled")
		}
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.Cache.Capacity)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getInt64Env(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getInt64ListEnv(key string, def []int64) []int64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return def
		}
		out = append(out, n)
	}
	return out
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
