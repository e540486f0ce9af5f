package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application settings read from the environment
type Config struct {
	ServerAddr  string
	Environment string
	ServiceName string

	StoreBackend string
	NodeID       int64

	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	SQLitePath string

	ShortCodeStrategy     string
	ShortCodeLength       int
	MaxGenerationAttempts int

	LogLevel     string
	LokiURL      string
	OTLPEndpoint string

	ShutdownTimeout time.Duration
}

// LoadConfig reads .env (if present) and the process environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
	}

	return FromEnv()
}

// FromEnv builds a Config from the environment without touching .env files
func FromEnv() (*Config, error) {
	config := &Config{
		ServerAddr:  getEnvWithDefault("SERVER_ADDR", ":8080"),
		Environment: getEnvWithDefault("ENV", "development"),
		ServiceName: getEnvWithDefault("SERVICE_NAME", "shortlink"),

		StoreBackend: strings.ToLower(getEnvWithDefault("STORE_BACKEND", "postgres")),

		PostgresURL:      os.Getenv("POSTGRES_URL"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresSSLMode:  getEnvWithDefault("POSTGRES_SSLMODE", "prefer"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisPrefix:   getEnvWithDefault("REDIS_PREFIX", "shortlink:"),

		SQLitePath: getEnvWithDefault("SQLITE_PATH", "./data/shortlink.db"),

		ShortCodeStrategy: strings.ToLower(getEnvWithDefault("SHORTCODE_STRATEGY", "random")),

		LogLevel:     strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LokiURL:      os.Getenv("LOKI_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if config.PostgresPort, err = getIntEnv("POSTGRES_PORT", 5432); err != nil {
		return nil, err
	}
	if config.RedisDB, err = getIntEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if config.ShortCodeLength, err = getIntEnv("SHORTCODE_LENGTH", 6); err != nil {
		return nil, err
	}
	if config.MaxGenerationAttempts, err = getIntEnv("SHORTCODE_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	nodeID, err := getIntEnv("NODE_ID", 1)
	if err != nil {
		return nil, err
	}
	config.NodeID = int64(nodeID)

	config.ShutdownTimeout = 30 * time.Second
	if raw := os.Getenv("SHUTDOWN_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		config.ShutdownTimeout = d
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings required by the selected backend
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres":
		if c.PostgresURL == "" {
			if c.PostgresHost == "" || c.PostgresUser == "" || c.PostgresDB == "" {
				return fmt.Errorf("either POSTGRES_URL or POSTGRES_HOST, POSTGRES_USER, and POSTGRES_DB must be set")
			}
			c.PostgresURL = buildPostgresURL(c)
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR not set")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH not set")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q (must be postgres, redis, sqlite or memory)", c.StoreBackend)
	}

	if c.ShortCodeLength < 3 || c.ShortCodeLength > 10 {
		return fmt.Errorf("invalid SHORTCODE_LENGTH: %d (must be 3-10)", c.ShortCodeLength)
	}
	if c.MaxGenerationAttempts < 1 {
		return fmt.Errorf("invalid SHORTCODE_MAX_ATTEMPTS: %d", c.MaxGenerationAttempts)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("invalid NODE_ID: %d (must be 0-1023)", c.NodeID)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}
	return nil
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

// buildPostgresURL constructs PostgreSQL connection URL from individual parameters
func buildPostgresURL(config *Config) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(config.PostgresHost, strconv.Itoa(config.PostgresPort)),
		Path:     "/" + config.PostgresDB,
		RawQuery: url.Values{"sslmode": {config.PostgresSSLMode}}.Encode(),
	}
	switch {
	case config.PostgresPassword != "":
		u.User = url.UserPassword(config.PostgresUser, config.PostgresPassword)
	case config.PostgresUser != "":
		u.User = url.User(config.PostgresUser)
	}
	return u.String()
}
