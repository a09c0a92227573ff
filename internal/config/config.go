// Package config loads runtime settings.
//
// PRECEDENCE (highest first):
//  1. Environment variables (PORT, DB_PATH, JWT_SECRET, ...)
//  2. The optional config file given with --config (yaml, json or toml)
//  3. Defaults set in this file
//
// A .env file in the working directory is loaded into the environment
// before any of this happens, so local development needs no exports.
//
// When a config file is in use it is watched; the admin allow-list is the
// one setting that changes without a restart (see Loader.Watch).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultFeedURL is the daily GitHub trending snapshot.
const DefaultFeedURL = "https://raw.githubusercontent.com/findmio/github-trending-api/main/raw/day.json"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Cron     CronConfig     `mapstructure:"cron"`
	Trending TrendingConfig `mapstructure:"trending"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RateLimit      int           `mapstructure:"rate_limit"` // write requests per IP per RateWindow
	RateWindow     time.Duration `mapstructure:"rate_window"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	GitHubClientID     string        `mapstructure:"github_client_id"`
	GitHubClientSecret string        `mapstructure:"github_client_secret"`
	GitHubCallbackURL  string        `mapstructure:"github_callback_url"`
	AdminUserIDs       []string      `mapstructure:"admin_user_ids"`
	WebhookSecret      string        `mapstructure:"webhook_secret"`
}

// GitHubEnabled reports whether the GitHub login routes can be mounted.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type CronConfig struct {
	Secret     string `mapstructure:"secret"`
	SecretHash string `mapstructure:"secret_hash"`
}

type TrendingConfig struct {
	FeedURL  string        `mapstructure:"feed_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Interval time.Duration `mapstructure:"interval"` // 0 disables the in-process scheduler
}

type CacheConfig struct {
	Size       int           `mapstructure:"size"`
	ListTTL    time.Duration `mapstructure:"list_ttl"`
	DetailsTTL time.Duration `mapstructure:"details_ttl"`
	VoteTTL    time.Duration `mapstructure:"vote_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// envBindings keeps the variable names operators already know.
var envBindings = map[string]string{
	"server.port":               "PORT",
	"server.allowed_origins":    "CORS_ORIGINS",
	"server.rate_limit":         "RATE_LIMIT",
	"database.path":             "DB_PATH",
	"auth.jwt_secret":           "JWT_SECRET",
	"auth.session_ttl":          "SESSION_TTL",
	"auth.github_client_id":     "GITHUB_CLIENT_ID",
	"auth.github_client_secret": "GITHUB_CLIENT_SECRET",
	"auth.github_callback_url":  "GITHUB_CALLBACK_URL",
	"auth.admin_user_ids":       "ADMIN_USER_IDS",
	"auth.webhook_secret":       "WEBHOOK_SECRET",
	"cron.secret":               "CRON_SECRET",
	"cron.secret_hash":          "CRON_SECRET_HASH",
	"trending.feed_url":         "TRENDING_FEED_URL",
	"trending.timeout":          "TRENDING_TIMEOUT",
	"trending.interval":         "TRENDING_INTERVAL",
	"log.level":                 "LOG_LEVEL",
	"log.format":                "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit", 30)
	v.SetDefault("server.rate_window", time.Minute)
	v.SetDefault("database.path", "data/alternatives.db")
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_user_ids", []string{})
	v.SetDefault("trending.feed_url", DefaultFeedURL)
	v.SetDefault("trending.timeout", 30*time.Second)
	v.SetDefault("trending.interval", time.Duration(0))
	v.SetDefault("cache.size", 2048)
	v.SetDefault("cache.list_ttl", 5*time.Minute)
	v.SetDefault("cache.details_ttl", 10*time.Minute)
	v.SetDefault("cache.vote_ttl", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are skipped; variables that
// are already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: loading %s: %w", f, err)
		}
	}
	return nil
}

// Loader owns one viper instance so Load and Watch see the same state.
type Loader struct {
	v    *viper.Viper
	file string
}

// NewLoader prepares a loader. file may be empty (env and defaults only).
func NewLoader(file string) *Loader {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		// BindEnv only fails when called without a key.
		_ = v.BindEnv(key, env)
	}
	if file != "" {
		v.SetConfigFile(file)
	}
	return &Loader{v: v, file: file}
}

// Load reads the config file (if any), applies env overrides and validates.
func (l *Loader) Load() (*Config, error) {
	if l.file != "" {
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: reading %s: %w", l.file, err)
			}
		}
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the re-read config every time the config file
// changes. An invalid edit is logged and ignored; the previous config stays.
// Without a config file there is nothing to watch and Watch returns false.
func (l *Loader) Watch(logger *slog.Logger, onChange func(*Config)) bool {
	if l.file == "" {
		return false
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config file changed", slog.String("file", e.Name), slog.String("op", e.Op.String()))

		cfg, err := l.decode()
		if err != nil {
			logger.Error("ignoring invalid config change", slog.String("error", err.Error()))
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}

// normalize trims list entries so "a, b" behaves like "a,b".
func (c *Config) normalize() {
	c.Auth.AdminUserIDs = cleanList(c.Auth.AdminUserIDs)
	c.Server.AllowedOrigins = cleanList(c.Server.AllowedOrigins)
	if c.Auth.GitHubCallbackURL == "" {
		c.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Server.Port)
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		// env values arrive as one comma-joined string on some platforms
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("config: database.path must not be empty")
	}
	if c.Trending.FeedURL == "" {
		return errors.New("config: trending.feed_url must not be empty")
	}
	if c.Trending.Timeout <= 0 {
		return errors.New("config: trending.timeout must be positive")
	}
	if c.Trending.Interval < 0 {
		return errors.New("config: trending.interval must not be negative")
	}
	if c.Cache.Size <= 0 {
		return errors.New("config: cache.size must be positive")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("config: server.rate_limit must not be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q must be text or json", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug/info/warn/error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log.level %q: %w", s, err)
	}
	return level, nil
}
