// Package config loads the pricing engine's ops configuration from a YAML
// file with environment-variable overrides for secrets and hosts. Only
// the knobs listed in the external interfaces contract are configurable;
// core pricing behaviour is never driven by configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Broker   BrokerConfig   `yaml:"broker"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Deadline DeadlineConfig `yaml:"deadline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int `yaml:"port"`
	ReadTimeout  int `yaml:"read_timeout_seconds"`
	WriteTimeout int `yaml:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	DBName             string `yaml:"dbname"`
	SSLMode            string `yaml:"sslmode"`
	MaxOpenConnections int    `yaml:"max_open_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections"`
}

// DSN renders the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	PreparationCacheTTLSeconds int `yaml:"preparation_cache_ttl_seconds"`
	IdempotencyCacheTTLSeconds int `yaml:"idempotency_cache_ttl_seconds"`
	ResultCacheTTLSeconds      int `yaml:"result_cache_ttl_seconds"`
}

// Addr renders host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r RedisConfig) PreparationCacheTTL() time.Duration {
	return time.Duration(r.PreparationCacheTTLSeconds) * time.Second
}

func (r RedisConfig) IdempotencyCacheTTL() time.Duration {
	return time.Duration(r.IdempotencyCacheTTLSeconds) * time.Second
}

func (r RedisConfig) ResultCacheTTL() time.Duration {
	return time.Duration(r.ResultCacheTTLSeconds) * time.Second
}

type BrokerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type OutboxConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	BatchSize           int `yaml:"batch_size"`
	MaxRetries          int `yaml:"max_retries"`
}

func (o OutboxConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

type WebhookConfig struct {
	Endpoints      []string `yaml:"endpoints"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxRetries     int      `yaml:"max_retries"`
}

func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

type DeadlineConfig struct {
	RequestDeadlineSeconds    int `yaml:"request_deadline_seconds"`
	PureComputeCeilingSeconds int `yaml:"pure_compute_ceiling_seconds"`
}

func (d DeadlineConfig) RequestDeadline() time.Duration {
	return time.Duration(d.RequestDeadlineSeconds) * time.Second
}

func (d DeadlineConfig) PureComputeCeiling() time.Duration {
	return time.Duration(d.PureComputeCeilingSeconds) * time.Second
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with the defaults named in the external
// interfaces contract.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080, ReadTimeout: 10, WriteTimeout: 10},
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "postgres", DBName: "pricing_engine",
			SSLMode: "disable", MaxOpenConnections: 25, MaxIdleConnections: 5,
		},
		Redis: RedisConfig{
			Host: "localhost", Port: 6379,
			PreparationCacheTTLSeconds: 3600,
			IdempotencyCacheTTLSeconds: 86400,
			ResultCacheTTLSeconds:      3600,
		},
		Broker: BrokerConfig{Brokers: []string{"localhost:9092"}, Topic: "calculation.completed"},
		Outbox: OutboxConfig{PollIntervalSeconds: 5, BatchSize: 100, MaxRetries: 8},
		Webhook: WebhookConfig{
			TimeoutSeconds: 5, MaxRetries: 3,
		},
		Deadline: DeadlineConfig{RequestDeadlineSeconds: 10, PureComputeCeilingSeconds: 5},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path (if path is empty, the file named by
// $CONFIG_FILE, else "config.yaml"),
// applies defaults for unset fields, then applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BROKER_URLS"); v != "" {
		cfg.Broker.Brokers = splitCSV(v)
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("WEBHOOK_ENDPOINTS"); v != "" {
		cfg.Webhook.Endpoints = splitCSV(v)
	}
	if v := os.Getenv("OUTBOX_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Outbox.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("OUTBOX_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Outbox.MaxRetries = n
		}
	}
	if v := os.Getenv("REQUEST_DEADLINE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deadline.RequestDeadlineSeconds = n
		}
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
