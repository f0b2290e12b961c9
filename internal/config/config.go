package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"timeclock/internal/timetrack"
)

// DefaultPath is used when TIMECLOCK_CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Backup     BackupConfig     `yaml:"backup"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Policy     PolicyConfig     `yaml:"policy"`
	Log        LogConfig        `yaml:"log"`
}

type HTTPConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Address             string `yaml:"address"`
	APIKey              string `yaml:"api_key"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // sqlite, postgres or memory
	Path       string `yaml:"path"`
	DSN        string `yaml:"dsn"`
	MaxConns   int    `yaml:"max_conns"`
	MaxRetries int    `yaml:"max_retries"`
}

type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	LockTTLSeconds  int    `yaml:"lock_ttl_seconds"`
	LockWaitSeconds int    `yaml:"lock_wait_seconds"`
}

type KafkaConfig struct {
	Enabled bool              `yaml:"enabled"`
	Brokers []string          `yaml:"brokers"`
	Topic   string            `yaml:"topic"`
	Topics  map[string]string `yaml:"topics"` // event type -> topic
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Interval returns the snapshot period, one day when unset.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// PolicyConfig mirrors timetrack.Policy in minutes and hours.
type PolicyConfig struct {
	Timezone             string `yaml:"timezone"`
	MinRestMinutes       int    `yaml:"min_rest_minutes"`
	LunchWindowStartHour int    `yaml:"lunch_window_start_hour"`
	LunchWindowEndHour   int    `yaml:"lunch_window_end_hour"`
	MaxLunchMinutes      int    `yaml:"max_lunch_minutes"`
	MaxDailyWorkMinutes  int    `yaml:"max_daily_work_minutes"`
	MaxWeeklyWorkMinutes int    `yaml:"max_weekly_work_minutes"`
	StrictGate           *bool  `yaml:"strict_gate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Load reads the YAML file at path, expanding ${ENV_VAR} placeholders.
// Variables from a .env file next to the working directory are loaded first
// without overriding the process environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ReadTimeoutSeconds <= 0 {
		c.HTTP.ReadTimeoutSeconds = 10
	}
	if c.HTTP.WriteTimeoutSeconds <= 0 {
		c.HTTP.WriteTimeoutSeconds = 10
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/timeclock.db"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MaxRetries <= 0 {
		c.Database.MaxRetries = 2
	}

	if c.Redis.LockTTLSeconds <= 0 {
		c.Redis.LockTTLSeconds = 10
	}
	if c.Redis.LockWaitSeconds <= 0 {
		c.Redis.LockWaitSeconds = 5
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "timeclock.events"
	}

	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}

	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 2
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram.bot_token is required when telegram is enabled")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if _, err := c.Policy.Build(); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the configured level, info when unparsable.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Build converts the policy section into a timetrack.Policy. Unset limits
// fall back to the defaults and StrictGate defaults to true.
func (p PolicyConfig) Build() (timetrack.Policy, error) {
	var policy timetrack.Policy

	if p.Timezone != "" {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return timetrack.Policy{}, fmt.Errorf("policy.timezone %q: %w", p.Timezone, err)
		}
		policy.Location = loc
	}

	if p.LunchWindowStartHour < 0 || p.LunchWindowEndHour > 24 {
		return timetrack.Policy{}, fmt.Errorf("policy lunch window %d-%d out of range", p.LunchWindowStartHour, p.LunchWindowEndHour)
	}
	if p.LunchWindowStartHour != 0 && p.LunchWindowEndHour == 0 {
		return timetrack.Policy{}, errors.New("policy.lunch_window_end_hour is required when lunch_window_start_hour is set")
	}
	if p.LunchWindowEndHour != 0 && p.LunchWindowEndHour <= p.LunchWindowStartHour {
		return timetrack.Policy{}, fmt.Errorf("policy lunch window %d-%d is empty", p.LunchWindowStartHour, p.LunchWindowEndHour)
	}

	policy.MinRest = time.Duration(p.MinRestMinutes) * time.Minute
	policy.LunchWindowStart = p.LunchWindowStartHour
	policy.LunchWindowEnd = p.LunchWindowEndHour
	policy.MaxLunch = time.Duration(p.MaxLunchMinutes) * time.Minute
	policy.MaxDailyWork = time.Duration(p.MaxDailyWorkMinutes) * time.Minute
	policy.MaxWeeklyWork = time.Duration(p.MaxWeeklyWorkMinutes) * time.Minute

	policy.StrictGate = true
	if p.StrictGate != nil {
		policy.StrictGate = *p.StrictGate
	}

	return policy.WithDefaults(), nil
}
