package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Lines      []LineConfig     `yaml:"lines"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Activity   ActivityConfig   `yaml:"activity"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// RedisConfig holds the connection settings for the status event stream.
// An empty Addr disables publishing.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// LogConfig selects the zap logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ShiftConfig is one named work shift in wall-clock HH:mm.
type ShiftConfig struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// WindowConfig is a wall-clock window in HH:mm.
type WindowConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// CalendarConfig is the fixed shift calendar.
type CalendarConfig struct {
	Timezone        string        `yaml:"timezone"`
	Shifts          []ShiftConfig `yaml:"shifts"`
	Lunch           WindowConfig  `yaml:"lunch"`
	PlannedMinutes  int           `yaml:"planned_minutes"`
	ProductionHours []int         `yaml:"production_hours"`
}

// LineConfig provisions one production line and its production rate range.
type LineConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	RateMin         int    `yaml:"rate_min"`
	RateMax         int    `yaml:"rate_max"`
	TheoreticalRate int    `yaml:"theoretical_rate"`
}

// SchedulerConfig holds the cadence of the periodic enforcement job.
type SchedulerConfig struct {
	Enabled                bool          `yaml:"enabled"`
	EnforceIntervalSeconds int           `yaml:"enforce_interval_seconds"`
	EnforceInterval        time.Duration `yaml:"-"`
	StoreTimeoutSeconds    int           `yaml:"store_timeout_seconds"`
	StoreTimeout           time.Duration `yaml:"-"`
}

// ActivityConfig selects where issue/task activity is read from.
type ActivityConfig struct {
	Source         string `yaml:"source"` // none, database or http
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = "line-status:events"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Calendar.PlannedMinutes <= 0 {
		cfg.Calendar.PlannedMinutes = 240
	}

	if cfg.Scheduler.EnforceIntervalSeconds <= 0 {
		cfg.Scheduler.EnforceIntervalSeconds = 120
	}
	cfg.Scheduler.EnforceInterval = time.Duration(cfg.Scheduler.EnforceIntervalSeconds) * time.Second
	if cfg.Scheduler.StoreTimeoutSeconds <= 0 {
		cfg.Scheduler.StoreTimeoutSeconds = 5
	}
	cfg.Scheduler.StoreTimeout = time.Duration(cfg.Scheduler.StoreTimeoutSeconds) * time.Second

	if cfg.Activity.Source == "" {
		cfg.Activity.Source = "none"
	}
	if cfg.Activity.TimeoutSeconds <= 0 {
		cfg.Activity.TimeoutSeconds = 5
	}
}
