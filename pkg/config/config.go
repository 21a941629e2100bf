package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Conversion    ConversionConfig
	Session       SessionConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	AllowedOrigins     []string
	// MaxUploadBytes caps uploaded documents.
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

type ConversionConfig struct {
	ParseTimeout time.Duration
	// MappingFile overrides the built-in tax classification tables when set.
	MappingFile string
}

type SessionConfig struct {
	TTL           time.Duration
	SweepSchedule string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
			AllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_MB", 50)) << 20,
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Conversion: ConversionConfig{
			ParseTimeout: getEnvAsDuration("PARSE_TIMEOUT", 60*time.Second),
			MappingFile:  getEnv("MAPPING_FILE", ""),
		},
		Session: SessionConfig{
			TTL:           getEnvAsDuration("SESSION_TTL", 30*time.Minute),
			SweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "*/5 * * * *"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d is out of range", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	if c.Conversion.ParseTimeout <= 0 {
		return errors.New("PARSE_TIMEOUT must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Observability.MetricsEnabled && c.Observability.MetricsPort == c.Server.Port {
		return errors.New("METRICS_PORT must differ from SERVER_PORT")
	}
	return nil
}

// Addr returns the listen address of the API server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger builds the process logger from the log settings.
func (c *LogConfig) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
