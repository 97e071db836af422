package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type Config struct {
	DBConfig DBConfig

	AWSRegion string
	QueueURL  string
	Bucket    string

	RawPrefix        string
	QuarantinePrefix string
	ProducerTag      string

	RelayBatchSize    int
	RelayBackoff      time.Duration
	RelayIdleInterval time.Duration
	RelayWarnAttempts int

	WorkerMaxMessages       int
	WorkerWaitTime          time.Duration
	WorkerVisibilityTimeout time.Duration

	HTTPPort       int
	MigrationsPath string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DBConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("DB_NAME", "payments_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", "us-east-1")
	cfg.QueueURL = getEnvOrDefault("QUEUE_URL", "")
	cfg.Bucket = getEnvOrDefault("BUCKET", "")

	cfg.RawPrefix = getEnvOrDefault("RAW_PREFIX", "raw")
	cfg.QuarantinePrefix = getEnvOrDefault("QUARANTINE_PREFIX", "quarantine")
	cfg.ProducerTag = getEnvOrDefault("PRODUCER_TAG", "relay")

	cfg.RelayBatchSize = getEnvAsInt("RELAY_BATCH_SIZE", 10)
	cfg.RelayBackoff = getEnvAsDuration("RELAY_BACKOFF", 5*time.Second)
	cfg.RelayIdleInterval = getEnvAsDuration("RELAY_IDLE_INTERVAL", 1*time.Second)
	cfg.RelayWarnAttempts = getEnvAsInt("RELAY_WARN_ATTEMPTS", 10)

	cfg.WorkerMaxMessages = getEnvAsInt("WORKER_MAX_MESSAGES", 5)
	cfg.WorkerWaitTime = getEnvAsDuration("WORKER_WAIT_TIME", 20*time.Second)
	cfg.WorkerVisibilityTimeout = getEnvAsDuration("WORKER_VISIBILITY_TIMEOUT", 60*time.Second)

	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8080)
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file://migrations")

	return cfg, nil
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
