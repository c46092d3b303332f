package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	syncapp "scalesync/internal/sync/application"
	"scalesync/internal/sync/notify"
)

// FileEnv names the variable pointing at an optional YAML overlay.
const FileEnv = "SCALESYNC_CONFIG"

// Config is the process configuration.
type Config struct {
	HTTPAddr string           `yaml:"http_addr"`
	Database DatabaseConfig   `yaml:"database"`
	Upstream UpstreamConfig   `yaml:"upstream"`
	Sync     SyncConfig       `yaml:"sync"`
	Schedule syncapp.Schedule `yaml:"schedule"`
	Redis    RedisConfig      `yaml:"redis"`
	MQTT     notify.Config    `yaml:"mqtt"`
	Auth     AuthConfig       `yaml:"auth"`
	Query    QueryConfig      `yaml:"query"`
	Log      LogConfig        `yaml:"log"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type SyncConfig struct {
	EntityTimeout   time.Duration `yaml:"entity_timeout"`
	Parallelism     int           `yaml:"parallelism"`
	HistoryStart    time.Time     `yaml:"history_start"`
	Lookback        time.Duration `yaml:"lookback"`
	KeepExtraFields bool          `yaml:"keep_extra_fields"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

// RedisConfig enables the run lock when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig enables bearer tokens when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type QueryConfig struct {
	MaxLimit int `yaml:"max_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads environment variables, then the YAML file named by SCALESYNC_CONFIG.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr: getenvDefault("HTTP_ADDR", ":8080"),
		Database: DatabaseConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxOpenConns:   getenvIntDefault("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:   getenvIntDefault("DB_MAX_IDLE_CONNS", 10),
			MigrateOnStart: getenvBoolDefault("MIGRATE_ON_START", true),
		},
		Upstream: UpstreamConfig{
			BaseURL: os.Getenv("UPSTREAM_BASE_URL"),
			Token:   os.Getenv("UPSTREAM_TOKEN"),
			Timeout: getenvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			EntityTimeout:   getenvDuration("SYNC_ENTITY_TIMEOUT", 60*time.Second),
			Parallelism:     getenvIntDefault("SYNC_PARALLELISM", 4),
			HistoryStart:    getenvTime("SYNC_HISTORY_START", syncapp.DefaultHistoryStart),
			Lookback:        getenvDuration("SYNC_LOOKBACK", 72*time.Hour),
			KeepExtraFields: getenvBoolDefault("SYNC_KEEP_EXTRA_FIELDS", false),
			LockTTL:         getenvDuration("SYNC_LOCK_TTL", 30*time.Minute),
		},
		Schedule: syncapp.Schedule{
			Hourly:  getenvDefault("SCHEDULE_HOURLY", "5 * * * *"),
			Daily:   getenvDefault("SCHEDULE_DAILY", "15 0 * * *"),
			Catalog: getenvDefault("SCHEDULE_CATALOG", "0 3 * * *"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvIntDefault("REDIS_DB", 0),
		},
		MQTT: notify.Config{
			Broker:   os.Getenv("MQTT_BROKER"),
			ClientID: getenvDefault("MQTT_CLIENT_ID", "scalesync"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			Topic:    getenvDefault("MQTT_TOPIC", "scalesync/runs"),
		},
		Auth:  AuthConfig{JWTSecret: os.Getenv("AUTH_JWT_SECRET")},
		Query: QueryConfig{MaxLimit: getenvIntDefault("QUERY_MAX_LIMIT", 10000)},
		Log: LogConfig{
			Level:  getenvDefault("LOG_LEVEL", "info"),
			Format: getenvDefault("LOG_FORMAT", "json"),
		},
	}

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("config: DATABASE_URL required"))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("config: UPSTREAM_BASE_URL required"))
	}
	if c.Upstream.Timeout <= 0 || c.Sync.EntityTimeout <= 0 || c.Sync.Lookback <= 0 || c.Sync.LockTTL <= 0 {
		errs = append(errs, errors.New("config: timeouts, lookback and lock ttl must be positive"))
	}
	if c.Sync.Parallelism <= 0 {
		errs = append(errs, errors.New("config: SYNC_PARALLELISM must be positive"))
	}
	if c.Query.MaxLimit <= 0 {
		errs = append(errs, errors.New("config: QUERY_MAX_LIMIT must be positive"))
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		errs = append(errs, errors.New("config: pool sizes must not be negative"))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "console" {
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT %q must be json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvTime(key string, fallback time.Time) time.Time {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fallback
	}
	return parsed.UTC()
}
