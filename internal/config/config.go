package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the open finance service
type Config struct {
	Environment string         `mapstructure:"environment"`
	Debug       bool           `mapstructure:"debug"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Payments    PaymentsConfig `mapstructure:"payments"`
	Bulk        BulkConfig     `mapstructure:"bulk"`
	Treasury    TreasuryConfig `mapstructure:"treasury"`
	Insurance   InsuranceConfig `mapstructure:"insurance"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Security    SecurityConfig `mapstructure:"security"`
	Risk        RiskConfig     `mapstructure:"risk"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig contains Redis configuration for caching and idempotency
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers []string     `mapstructure:"brokers"`
	Topics  TopicsConfig `mapstructure:"topics"`
}

// TopicsConfig contains Kafka topic configuration
type TopicsConfig struct {
	PaymentSubmitted  string `mapstructure:"payment_submitted"`
	BulkFileSubmitted string `mapstructure:"bulk_file_submitted"`
	VrpCollected      string `mapstructure:"vrp_collected"`
	VrpRevoked        string `mapstructure:"vrp_revoked"`
	QuoteIssued       string `mapstructure:"quote_issued"`
}

// PaymentsConfig contains payment pipeline configuration
type PaymentsConfig struct {
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// BulkConfig contains bulk file processing configuration
type BulkConfig struct {
	MaxFileSizeBytes      int           `mapstructure:"max_file_size_bytes"`
	StatusPollsToComplete int           `mapstructure:"status_polls_to_complete"`
	IdempotencyTTL        time.Duration `mapstructure:"idempotency_ttl"`
}

// TreasuryConfig contains treasury read configuration
type TreasuryConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// InsuranceConfig contains quote issuance configuration
type InsuranceConfig struct {
	QuoteValidity  time.Duration `mapstructure:"quote_validity"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// CacheConfig contains TTL cache configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SecurityConfig contains request signing configuration
type SecurityConfig struct {
	SignatureSecret string `mapstructure:"signature_secret"`
}

// RiskConfig contains local risk assessment configuration
type RiskConfig struct {
	MaxSingleAmount string   `mapstructure:"max_single_amount"`
	BlockedPayees   []string `mapstructure:"blocked_payees"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load() (Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/openfinance")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OPENFINANCE")

	// Config file is optional; defaults plus env cover local runs.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("debug", false)

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "openfinance")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "file://migrations")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.payment_submitted", "payment-submitted")
	viper.SetDefault("kafka.topics.bulk_file_submitted", "bulk-file-submitted")
	viper.SetDefault("kafka.topics.vrp_collected", "vrp-payment-collected")
	viper.SetDefault("kafka.topics.vrp_revoked", "vrp-consent-revoked")
	viper.SetDefault("kafka.topics.quote_issued", "quote-issued")

	viper.SetDefault("payments.idempotency_ttl", "24h")

	viper.SetDefault("bulk.max_file_size_bytes", 1048576)
	viper.SetDefault("bulk.status_polls_to_complete", 2)
	viper.SetDefault("bulk.idempotency_ttl", "24h")

	viper.SetDefault("treasury.default_page_size", 100)
	viper.SetDefault("treasury.max_page_size", 100)

	viper.SetDefault("insurance.quote_validity", "72h")
	viper.SetDefault("insurance.idempotency_ttl", "24h")

	viper.SetDefault("cache.ttl", "30s")

	viper.SetDefault("security.signature_secret", "dev-only-secret")
	viper.SetDefault("risk.max_single_amount", "100000")
	viper.SetDefault("risk.blocked_payees", []string{})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// Validate checks configuration values that would otherwise fail at runtime
func (c Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Bulk.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("bulk.max_file_size_bytes must be positive")
	}
	if c.Bulk.StatusPollsToComplete < 1 {
		return fmt.Errorf("bulk.status_polls_to_complete must be at least 1")
	}
	if c.Payments.IdempotencyTTL <= 0 {
		return fmt.Errorf("payments.idempotency_ttl must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Security.SignatureSecret == "" {
		return fmt.Errorf("security.signature_secret is required")
	}
	return nil
}

// DSN builds the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Name, d.SSLMode)
}

// Addr returns the host:port address for Redis
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
