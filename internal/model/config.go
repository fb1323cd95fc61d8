package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIConfig holds the REST endpoint settings.
type APIConfig struct {
	// BaseURL is the root of the portal REST API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single HTTP exchange.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// MaxRetries is how many times a rate-limited read is retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// CacheConfig holds the resource query cache settings.
type CacheConfig struct {
	MaxEntries    int `mapstructure:"max_entries" yaml:"max_entries"`
	StaleAfterSec int `mapstructure:"stale_after_sec" yaml:"stale_after_sec"`
}

// StaleAfter returns the default freshness window.
func (c CacheConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSec) * time.Second
}

// NotificationsConfig controls notification polling.
type NotificationsConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	PageSize        int `mapstructure:"page_size" yaml:"page_size"`
}

// StateConfig selects where client-local state (seen suppression, the
// session token) is persisted.
type StateConfig struct {
	// Backend is one of "sqlite", "keyring", "redis" or "memory".
	Backend    string `mapstructure:"backend" yaml:"backend"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	RedisAddr  string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB    int    `mapstructure:"redis_db" yaml:"redis_db"`
}

// EventsConfig configures the optional notification event listener.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Brokers string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string `mapstructure:"topic" yaml:"topic"`
	GroupID string `mapstructure:"group_id" yaml:"group_id"`
}

// DigestConfig configures delivery of the unseen-notification digest
// into an IMAP mailbox.
type DigestConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
	From     string `mapstructure:"from" yaml:"from"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Cache         CacheConfig         `mapstructure:"cache" yaml:"cache"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	State         StateConfig         `mapstructure:"state" yaml:"state"`
	Events        EventsConfig        `mapstructure:"events" yaml:"events"`
	Digest        DigestConfig        `mapstructure:"digest" yaml:"digest"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics       MetricsConfig       `mapstructure:"metrics" yaml:"metrics"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
}

// envPrefix namespaces environment overrides, e.g. PORTAL_API_BASE_URL.
const envPrefix = "PORTAL"

// DefaultConfigDir returns ~/.config/portal.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "portal")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/portal/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// defaults maps every config key to its default value.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.base_url":                    "http://localhost:8080/api",
		"api.timeout_sec":                 30,
		"api.max_retries":                 3,
		"cache.max_entries":               100,
		"cache.stale_after_sec":           300,
		"notifications.poll_interval_sec": 30,
		"notifications.page_size":         20,
		"state.backend":                   "sqlite",
		"state.sqlite_path":               filepath.Join(DefaultConfigDir(), "state.db"),
		"state.redis_addr":                "localhost:6379",
		"state.redis_db":                  0,
		"events.enabled":                  false,
		"events.brokers":                  "localhost:9092",
		"events.topic":                    "portal.notifications",
		"events.group_id":                 "portal-client",
		"digest.enabled":                  false,
		"digest.port":                     "993",
		"digest.tls":                      true,
		"digest.mailbox":                  "INBOX",
		"telemetry.enabled":               false,
		"telemetry.endpoint":              "localhost:4318",
		"telemetry.service_name":          "portal-client",
		"metrics.addr":                    "",
		"log.level":                       "info",
		"log.format":                      "text",
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first so its values can
// override file settings through PORTAL_* variables. A missing config
// file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Notifications.PollIntervalSec <= 0 {
		cfg.Notifications.PollIntervalSec = 30
	}
	if cfg.Notifications.PageSize <= 0 {
		cfg.Notifications.PageSize = 20
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = 100
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("cache", cfg.Cache)
	v.Set("notifications", cfg.Notifications)
	v.Set("state", cfg.State)
	v.Set("events", cfg.Events)
	v.Set("digest", cfg.Digest)
	v.Set("telemetry", cfg.Telemetry)
	v.Set("metrics", cfg.Metrics)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
