// Package config loads service configuration from YAML, an optional .env
// file and PM_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"prediction-market-amm/internal/pricing"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Market    MarketConfig    `yaml:"market"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	AuthRequired    bool          `yaml:"auth_required" default:"true"`
	MaxClockSkew    time.Duration `yaml:"max_clock_skew" default:"30s" validate:"gt=0"`
	AdminKey        string        `yaml:"admin_key"` // base58 public key allowed to fund accounts
}

type StorageConfig struct {
	Backend       string `yaml:"backend" default:"memory" validate:"oneof=memory postgres"`
	PostgresDSN   string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // empty keeps the journal in memory
	Migrate       bool   `yaml:"migrate" default:"true"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db" validate:"gte=0"`
	LockTTL   time.Duration `yaml:"lock_ttl" default:"10s" validate:"gt=0"`
	LockRetry time.Duration `yaml:"lock_retry" default:"20ms" validate:"gt=0"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `yaml:"topic" default:"market-events"`
	Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr" default:":9090"`
	Namespace string `yaml:"namespace" default:"prediction_market"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" default:"20" validate:"gt=0"`
	Burst int     `yaml:"burst" default:"40" validate:"gt=0"`
}

type MarketConfig struct {
	// ProgramID is the base58 key all record addresses are derived under.
	ProgramID      string         `yaml:"program_id" default:"11111111111111111111111111111112" validate:"required"`
	DefaultFeeRate uint16         `yaml:"default_fee_rate" default:"30" validate:"lte=1000"`
	Pricing        pricing.Params `yaml:"pricing"`
}

var validate = validator.New()

// Load builds a Config. path may be empty to rely on defaults and the
// environment alone. A .env file in the working directory is read if present;
// variables already set in the process win over it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// applyEnv overrides fields from PM_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("PM_SERVER_ADDR", &c.Server.Addr)
	boolean("PM_AUTH_REQUIRED", &c.Server.AuthRequired)
	str("PM_ADMIN_KEY", &c.Server.AdminKey)
	str("PM_STORAGE_BACKEND", &c.Storage.Backend)
	str("PM_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("PM_CLICKHOUSE_DSN", &c.Storage.ClickhouseDSN)
	boolean("PM_REDIS_ENABLED", &c.Redis.Enabled)
	str("PM_REDIS_ADDR", &c.Redis.Addr)
	str("PM_REDIS_PASSWORD", &c.Redis.Password)
	boolean("PM_KAFKA_ENABLED", &c.Kafka.Enabled)
	if v, ok := lookup("PM_KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	str("PM_KAFKA_TOPIC", &c.Kafka.Topic)
	str("PM_METRICS_ADDR", &c.Metrics.Addr)
	str("PM_LOG_LEVEL", &c.Log.Level)
	str("PM_LOG_FORMAT", &c.Log.Format)
	str("PM_PROGRAM_ID", &c.Market.ProgramID)

	return errors.Join(errs...)
}
