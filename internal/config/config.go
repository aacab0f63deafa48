package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Booking  BookingConfig  `yaml:"booking"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Dialect is "sqlite3" or "postgres".
	Dialect         string        `yaml:"dialect"`
	DSN             string        `yaml:"dsn"`
	LogMode         bool          `yaml:"log_mode"`
	Seed            bool          `yaml:"seed"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type BookingConfig struct {
	DefaultSlotMinutes int `yaml:"default_slot_minutes"`
	DefaultPageLimit   int `yaml:"default_page_limit"`
	MaxPageLimit       int `yaml:"max_page_limit"`
}

type RealtimeConfig struct {
	QueueSize    int `yaml:"queue_size"`
	ClientBuffer int `yaml:"client_buffer"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8080,
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Dialect:         "sqlite3",
			DSN:             "maitred.db",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Booking: BookingConfig{
			DefaultSlotMinutes: 90,
			DefaultPageLimit:   10,
			MaxPageLimit:       100,
		},
		Realtime: RealtimeConfig{
			QueueSize:    1024,
			ClientBuffer: 256,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "maitred:events",
		},
		Kafka: KafkaConfig{
			Topic: "restaurant-events",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Load reads the YAML file at path on top of Default, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MAITRED_DB_DIALECT"); v != "" {
		c.Database.Dialect = v
	}
	if v := os.Getenv("MAITRED_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("MAITRED_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("MAITRED_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("MAITRED_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("MAITRED_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Dialect {
	case "sqlite3", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("database.dialect %q is not supported", c.Database.Dialect))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "auth.jwt_secret is required")
	}
	if c.Booking.DefaultSlotMinutes <= 0 {
		problems = append(problems, "booking.default_slot_minutes must be positive")
	}
	if c.Booking.DefaultPageLimit <= 0 || c.Booking.MaxPageLimit < c.Booking.DefaultPageLimit {
		problems = append(problems, "booking page limits are inconsistent")
	}
	if c.Realtime.QueueSize <= 0 || c.Realtime.ClientBuffer <= 0 {
		problems = append(problems, "realtime buffers must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers is required when kafka is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
