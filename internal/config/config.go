package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string   `mapstructure:"ENV"`
	Port               string   `mapstructure:"PORT"`
	LogLevel           string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	APIBaseURL         string   `mapstructure:"API_BASE_URL"`
	APIToken           string   `mapstructure:"API_TOKEN"`
	APITimeoutSeconds  int      `mapstructure:"API_TIMEOUT_SECONDS"`
	RealtimeURL        string   `mapstructure:"REALTIME_URL"`
	RealtimeEvent      string   `mapstructure:"REALTIME_EVENT"`
	ScopeKey           string   `mapstructure:"SCOPE_KEY"`
	TokenSigningKey    string   `mapstructure:"TOKEN_SIGNING_KEY"`
	ExitPath           string   `mapstructure:"EXIT_PATH"`
	SearchDebounceMS   int      `mapstructure:"SEARCH_DEBOUNCE_MS"`
	RealtimeThrottleMS int      `mapstructure:"REALTIME_THROTTLE_MS"`
	QueueLimit         int      `mapstructure:"QUEUE_LIMIT"`
	OptionLimit        int      `mapstructure:"OPTION_LIMIT"`
	RequestTimeoutMS   int      `mapstructure:"REQUEST_TIMEOUT_MS"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir      string   `mapstructure:"MIGRATIONS_DIR"`
}

var keys = []string{
	"ENV", "PORT", "LOG_LEVEL", "CORS_ORIGINS",
	"API_BASE_URL", "API_TOKEN", "API_TIMEOUT_SECONDS",
	"REALTIME_URL", "REALTIME_EVENT", "SCOPE_KEY", "TOKEN_SIGNING_KEY", "EXIT_PATH",
	"SEARCH_DEBOUNCE_MS", "REALTIME_THROTTLE_MS", "QUEUE_LIMIT", "OPTION_LIMIT", "REQUEST_TIMEOUT_MS",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
}

// Load reads .env (when present) and the environment. It does not validate;
// call Validate before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("API_TIMEOUT_SECONDS", 15)
	v.SetDefault("EXIT_PATH", "/dashboard")
	v.SetDefault("SEARCH_DEBOUNCE_MS", 280)
	v.SetDefault("REALTIME_THROTTLE_MS", 700)
	v.SetDefault("QUEUE_LIMIT", 40)
	v.SetDefault("OPTION_LIMIT", 50)
	v.SetDefault("REQUEST_TIMEOUT_MS", 30000)
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.RealtimeURL != "" {
		u, err := url.Parse(c.RealtimeURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("REALTIME_URL must be a ws:// or wss:// URL, got %q", c.RealtimeURL)
		}
	}
	if c.ExitPath != "" && !strings.HasPrefix(c.ExitPath, "/") {
		return fmt.Errorf("EXIT_PATH must start with /, got %q", c.ExitPath)
	}
	if c.QueueLimit < 0 || c.OptionLimit < 0 {
		return fmt.Errorf("QUEUE_LIMIT and OPTION_LIMIT must not be negative")
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.IsProduction() && c.TokenSigningKey == "" {
		return fmt.Errorf("TOKEN_SIGNING_KEY is required in production")
	}
	return nil
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMS) * time.Millisecond
}

func (c *Config) RealtimeThrottle() time.Duration {
	return time.Duration(c.RealtimeThrottleMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// HasDatabase reports whether the local legacy-route store is configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}
