package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultFullSyncPath = "/api/v1/sync/full"
	// DefaultMaxBodyBytes ограничивает тело снимка; полный снимок включает мягко удаленные строки
	DefaultMaxBodyBytes int64 = 256 << 20
)

type Config struct {
	Env    string
	Node   node
	DB     db
	Server server
	Logger logger
	Sync   Sync
}

type node struct {
	Name string `mapstructure:"node_name"`
}

type db struct {
	Driver      string `mapstructure:"db_driver"`
	DatabaseURI string `mapstructure:"database_uri"`
	Migrations  string `mapstructure:"migrations_path"`
}

type server struct {
	RunAddress string `mapstructure:"run_address"`
}

type logger struct {
	LogLevel string `mapstructure:"log_level"`
}

// Sync параметры обмена снимками с удаленным узлом
type Sync struct {
	APIKey     string        `mapstructure:"sync_api_key"`
	RemoteURL  string        `mapstructure:"sync_remote_url"`
	Timeout    time.Duration `mapstructure:"sync_timeout"`
	MaxRetries int           `mapstructure:"sync_max_retries"`
	RetryDelay time.Duration `mapstructure:"sync_retry_delay"`
	Interval   time.Duration `mapstructure:"sync_interval"`
	// FullSyncPath маршрут обмена снимками, общий для обоих узлов
	FullSyncPath string `mapstructure:"sync_full_path"`
	// MaxBodyBytes предел тела запроса обмена; -1 снимает ограничение
	MaxBodyBytes int64 `mapstructure:"sync_max_body_bytes"`
}

// Load читает .env (если есть), переменные окружения и необязательный файл конфигурации.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Env:    v.GetString("app_env"),
		Node:   node{Name: v.GetString("node_name")},
		DB:     db{Driver: strings.ToLower(v.GetString("db_driver")), DatabaseURI: v.GetString("database_uri"), Migrations: v.GetString("migrations_path")},
		Server: server{RunAddress: v.GetString("run_address")},
		Logger: logger{LogLevel: v.GetString("log_level")},
		Sync: Sync{
			APIKey:     v.GetString("sync_api_key"),
			RemoteURL:  strings.TrimRight(v.GetString("sync_remote_url"), "/"),
			Timeout:    v.GetDuration("sync_timeout"),
			MaxRetries: v.GetInt("sync_max_retries"),
			RetryDelay: v.GetDuration("sync_retry_delay"),
			Interval:   v.GetDuration("sync_interval"),

			FullSyncPath: v.GetString("sync_full_path"),
			MaxBodyBytes: v.GetInt64("sync_max_body_bytes"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("node_name", "edge")
	v.SetDefault("db_driver", DriverSQLite)
	v.SetDefault("database_uri", "eventsync.db")
	v.SetDefault("run_address", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("sync_timeout", 30*time.Second)
	v.SetDefault("sync_max_retries", 3)
	v.SetDefault("sync_retry_delay", 2*time.Second)
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("sync_full_path", DefaultFullSyncPath)
	v.SetDefault("sync_max_body_bytes", DefaultMaxBodyBytes)
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown environment %q", c.Env)
	}

	switch c.DB.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}

	if c.DB.DatabaseURI == "" {
		return errors.New("database uri is required")
	}

	if c.Sync.RemoteURL != "" {
		if _, err := url.ParseRequestURI(c.Sync.RemoteURL); err != nil {
			return fmt.Errorf("invalid sync remote url: %w", err)
		}
	}

	if c.Sync.Timeout <= 0 {
		return errors.New("sync timeout must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		return errors.New("sync max retries must not be negative")
	}
	if c.Sync.FullSyncPath != "" && !strings.HasPrefix(c.Sync.FullSyncPath, "/") {
		return fmt.Errorf("sync full path %q must start with /", c.Sync.FullSyncPath)
	}
	if c.Sync.MaxBodyBytes < -1 {
		return errors.New("sync max body bytes must be -1 or positive")
	}

	return nil
}

// MigrationDatabaseURL возвращает строку подключения в формате golang-migrate.
func (c *Config) MigrationDatabaseURL() string {
	if c.DB.Driver == DriverSQLite {
		return "sqlite3://" + c.DB.DatabaseURI
	}
	return c.DB.DatabaseURI
}

func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

func (c *Config) IsDev() bool {
	return c.Env == EnvDev
}

func (c *Config) IsLocal() bool {
	return c.Env == EnvLocal
}
