package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Docs     DocsConfig     `yaml:"docs"`
	Watch    WatchConfig    `yaml:"watch"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ProcessTimeout  time.Duration `yaml:"process_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds job-store configuration. An empty DSN disables the store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int           `yaml:"max_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// DocsConfig holds document decoding limits
type DocsConfig struct {
	MaxPages     int   `yaml:"max_pages"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

// WatchConfig holds the hot-folder settings
type WatchConfig struct {
	Dirs      []string      `yaml:"dirs"`
	OutputDir string        `yaml:"output_dir"`
	Format    string        `yaml:"format"`
	Debounce  time.Duration `yaml:"debounce"`
	Workers   int           `yaml:"workers"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8000",
			GRPCAddr:        ":9090",
			CORSOrigins:     []string{"http://localhost:5173", "http://127.0.0.1:5173"},
			MaxUploadBytes:  50 << 20,
			ProcessTimeout:  2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Docs: DocsConfig{
			MaxFileBytes: 50 << 20,
		},
		Watch: WatchConfig{
			Format:   "csv",
			Debounce: 500 * time.Millisecond,
			Workers:  2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration from, in increasing precedence, the
// defaults, the YAML file at path (skipped when path is empty), a .env file in
// the working directory, and the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("parse %s", path), err)
		}
	}

	_ = godotenv.Load() // a missing .env is fine

	cfg.Server.HTTPAddr = getEnv("HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = getEnv("GRPC_ADDR", cfg.Server.GRPCAddr)
	cfg.Server.CORSOrigins = getEnvAsList("CORS_ORIGINS", cfg.Server.CORSOrigins)
	cfg.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", cfg.Server.MaxUploadBytes)
	cfg.Server.ProcessTimeout = getEnvAsDuration("PROCESS_TIMEOUT", cfg.Server.ProcessTimeout)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.DSN = getEnv("DB_URL", cfg.Database.DSN)
	cfg.Database.MaxConns = getEnvAsInt("DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", cfg.Database.MaxConnLifetime)
	cfg.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", cfg.Database.MaxConnIdleTime)
	cfg.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", cfg.Database.DialTimeout)

	cfg.Docs.MaxPages = getEnvAsInt("DOCS_MAX_PAGES", cfg.Docs.MaxPages)
	cfg.Docs.MaxFileBytes = getEnvAsInt64("DOCS_MAX_FILE_BYTES", cfg.Docs.MaxFileBytes)

	cfg.Watch.Dirs = getEnvAsList("WATCH_DIRS", cfg.Watch.Dirs)
	cfg.Watch.OutputDir = getEnv("WATCH_OUTPUT_DIR", cfg.Watch.OutputDir)
	cfg.Watch.Format = getEnv("WATCH_FORMAT", cfg.Watch.Format)
	cfg.Watch.Debounce = getEnvAsDuration("WATCH_DEBOUNCE", cfg.Watch.Debounce)
	cfg.Watch.Workers = getEnvAsInt("WATCH_WORKERS", cfg.Watch.Workers)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required).
		Field("LOG_LEVEL", c.Log.Level, OneOf("debug", "info", "warn", "error")).
		Field("LOG_FORMAT", c.Log.Format, OneOf("json", "text")).
		Field("WATCH_FORMAT", c.Watch.Format, OneOf("json", "csv", "xlsx")).
		Check(c.Server.MaxUploadBytes > 0, "MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes, "must be positive").
		Check(c.Docs.MaxPages >= 0, "DOCS_MAX_PAGES", c.Docs.MaxPages, "must not be negative").
		Check(c.Watch.Workers > 0, "WATCH_WORKERS", c.Watch.Workers, "must be positive")
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
