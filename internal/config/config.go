package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	File     FileConfig     `yaml:"file_store"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	LeetCode LeetCodeConfig `yaml:"leetcode"`
	Discord  DiscordConfig  `yaml:"discord"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// SQLiteConfig holds the embedded database location
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// FileConfig holds the flat JSON file store location
type FileConfig struct {
	Dir string `yaml:"dir"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers              []string      `yaml:"brokers"`
	RegistrationTopic    string        `yaml:"registration_topic"`
	AnnouncementTopic    string        `yaml:"announcement_topic"`
	GroupID              string        `yaml:"group_id"`
	Enabled              bool          `yaml:"enabled"`
	PublishAnnouncements bool          `yaml:"publish_announcements"`
	BatchSize            int           `yaml:"batch_size"`
	BatchTimeout         time.Duration `yaml:"batch_timeout"`
	RetryAttempts        int           `yaml:"retry_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
}

// LeetCodeConfig configures the submission feed client
type LeetCodeConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	HistoryLimit int           `yaml:"history_limit"`
	UserAgent    string        `yaml:"user_agent"`
}

// DiscordConfig configures the notification sink
type DiscordConfig struct {
	Token               string        `yaml:"token"`
	APIBase             string        `yaml:"api_base"`
	AnnouncementChannel string        `yaml:"announcement_channel"`
	Enabled             bool          `yaml:"enabled"`
	MinInterval         time.Duration `yaml:"min_interval"`
	Burst               int           `yaml:"burst"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	QueueSize           int           `yaml:"queue_size"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
}

// TrackerConfig configures the accounting core
type TrackerConfig struct {
	Timezone       string `yaml:"timezone"`
	Concurrency    int    `yaml:"concurrency"`
	MaxCatchUpDays int    `yaml:"max_catch_up_days"`
	LeaderboardTop int    `yaml:"leaderboard_top"`
}

// ScheduleConfig holds job cadences. Clock values are HH:MM in the
// tracker timezone
type ScheduleConfig struct {
	Enabled            bool          `yaml:"enabled"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	WeeklySyncInterval time.Duration `yaml:"weekly_sync_interval"`
	StreakAt           string        `yaml:"streak_at"`
	StatusAt           string        `yaml:"status_at"`
	NudgeAt            string        `yaml:"nudge_at"`
	RecapDay           string        `yaml:"recap_day"`
	RecapAt            string        `yaml:"recap_at"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadEnv loads variables from .env style files into the process
// environment. Missing files are not an error
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references first
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "leetstreak"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	if c.SQLite.Path == "" {
		c.SQLite.Path = "data/leetstreak.db"
	}
	if c.File.Dir == "" {
		c.File.Dir = "data"
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.RegistrationTopic == "" {
		c.Kafka.RegistrationTopic = "leetstreak-registrations"
	}
	if c.Kafka.AnnouncementTopic == "" {
		c.Kafka.AnnouncementTopic = "leetstreak-announcements"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "leetstreak"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 50
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// LeetCode defaults
	if c.LeetCode.Endpoint == "" {
		c.LeetCode.Endpoint = "https://leetcode.com/graphql"
	}
	if c.LeetCode.Timeout == 0 {
		c.LeetCode.Timeout = 15 * time.Second
	}
	if c.LeetCode.HistoryLimit == 0 {
		c.LeetCode.HistoryLimit = 500
	}
	if c.LeetCode.UserAgent == "" {
		c.LeetCode.UserAgent = "Mozilla/5.0"
	}

	// Discord defaults
	if c.Discord.APIBase == "" {
		c.Discord.APIBase = "https://discord.com/api/v10"
	}
	if c.Discord.MinInterval == 0 {
		c.Discord.MinInterval = 1 * time.Second
	}
	if c.Discord.Burst == 0 {
		c.Discord.Burst = 1
	}
	if c.Discord.MaxRetries == 0 {
		c.Discord.MaxRetries = 3
	}
	if c.Discord.RetryBackoff == 0 {
		c.Discord.RetryBackoff = 2 * time.Second
	}
	if c.Discord.QueueSize == 0 {
		c.Discord.QueueSize = 256
	}
	if c.Discord.RequestTimeout == 0 {
		c.Discord.RequestTimeout = 10 * time.Second
	}

	// Tracker defaults
	if c.Tracker.Timezone == "" {
		c.Tracker.Timezone = "Asia/Kolkata"
	}
	if c.Tracker.Concurrency == 0 {
		c.Tracker.Concurrency = 4
	}
	if c.Tracker.MaxCatchUpDays == 0 {
		c.Tracker.MaxCatchUpDays = 7
	}
	if c.Tracker.LeaderboardTop == 0 {
		c.Tracker.LeaderboardTop = 10
	}

	// Schedule defaults
	if c.Schedule.PollInterval == 0 {
		c.Schedule.PollInterval = 5 * time.Minute
	}
	if c.Schedule.WeeklySyncInterval == 0 {
		c.Schedule.WeeklySyncInterval = 1 * time.Hour
	}
	if c.Schedule.StreakAt == "" {
		c.Schedule.StreakAt = "23:58"
	}
	if c.Schedule.StatusAt == "" {
		c.Schedule.StatusAt = "23:59"
	}
	if c.Schedule.NudgeAt == "" {
		c.Schedule.NudgeAt = "21:00"
	}
	if c.Schedule.RecapDay == "" {
		c.Schedule.RecapDay = "sunday"
	}
	if c.Schedule.RecapAt == "" {
		c.Schedule.RecapAt = "22:00"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects settings the process cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendFile, BackendRedis, BackendPostgres, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: must be one of file, redis, postgres, sqlite", c.Store.Backend))
	}

	for name, v := range map[string]string{
		"schedule.streak_at": c.Schedule.StreakAt,
		"schedule.status_at": c.Schedule.StatusAt,
		"schedule.nudge_at":  c.Schedule.NudgeAt,
		"schedule.recap_at":  c.Schedule.RecapAt,
	} {
		if _, _, err := ParseClock(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if _, err := ParseWeekday(c.Schedule.RecapDay); err != nil {
		errs = append(errs, fmt.Errorf("schedule.recap_day: %w", err))
	}
	if c.Tracker.Concurrency < 1 {
		errs = append(errs, errors.New("tracker.concurrency must be positive"))
	}

	return errors.Join(errs...)
}

// ParseClock parses an HH:MM wall clock value
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// ParseWeekday parses an English weekday name such as "sunday" or "Sun"
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Schedule.Enabled = true
	return cfg
}
