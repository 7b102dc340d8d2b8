package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	// Deployment environment ("development", "production", ...)
	Env string `toml:"env"`

	// Server configuration
	Server ServerConfig `toml:"server"`

	// Database configuration, used when Store.Backend is "postgres"
	Database DatabaseConfig `toml:"database"`

	// Key-value backend selection
	Store StoreConfig `toml:"store"`

	// Static content tier
	Content ContentConfig `toml:"content"`

	// Build trigger and nightly check
	Build BuildConfig `toml:"build"`

	// Admin authorization
	Auth AuthConfig `toml:"auth"`

	// Logging configuration
	Log LogConfig `toml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `toml:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host           string        `toml:"host"`
	Port           string        `toml:"port"`
	User           string        `toml:"user"`
	Password       string        `toml:"password"`
	Name           string        `toml:"name"`
	SSLMode        string        `toml:"sslmode"`
	MaxOpenConns   int           `toml:"max_open_conns"`
	MaxIdleConns   int           `toml:"max_idle_conns"`
	MaxLifetime    time.Duration `toml:"max_lifetime"`
	MigrationsPath string        `toml:"migrations_path"`
}

// Supported key-value backends
const (
	BackendPostgres = "postgres"
	BackendPebble   = "pebble"
	BackendMemory   = "memory"
)

// StoreConfig selects and configures the key-value backend
type StoreConfig struct {
	Backend     string `toml:"backend"`
	PebblePath  string `toml:"pebble_path"`
	CacheSizeMB int64  `toml:"cache_size_mb"`
}

// ContentConfig locates the static article tree
type ContentConfig struct {
	Dir          string `toml:"dir"`
	ParseCacheSz int    `toml:"parse_cache_size"`
}

// BuildConfig holds deploy hook and scheduler settings
type BuildConfig struct {
	DeployHookURL     string        `toml:"deploy_hook_url"`
	DeployHookTimeout time.Duration `toml:"deploy_hook_timeout"`
	DeployHookRetries int           `toml:"deploy_hook_retries"`
	CheckInterval     time.Duration `toml:"check_interval"` // 0 disables the scheduler
}

// AuthConfig holds the static admin token
type AuthConfig struct {
	AdminToken string `toml:"admin_token"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "pretty"
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from an optional TOML file (CONFIG_FILE) and then
// from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           "5432",
			User:           "postgres",
			Password:       "postgres",
			Name:           "draft_staging",
			SSLMode:        "disable",
			MaxOpenConns:   10,
			MaxIdleConns:   5,
			MaxLifetime:    5 * time.Minute,
			MigrationsPath: "./migrations",
		},
		Store: StoreConfig{
			Backend:     BackendPostgres,
			PebblePath:  "./data/kv",
			CacheSizeMB: 16,
		},
		Content: ContentConfig{
			Dir:          "./content/articles",
			ParseCacheSz: 256,
		},
		Build: BuildConfig{
			DeployHookTimeout: 15 * time.Second,
			DeployHookRetries: 3,
			CheckInterval:     0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("ENV", cfg.Env)

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = getIntEnv("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getIntEnv("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.MaxLifetime = getDurationEnv("DB_MAX_LIFETIME", cfg.Database.MaxLifetime)
	cfg.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.Database.MigrationsPath)

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.PebblePath = getEnv("PEBBLE_PATH", cfg.Store.PebblePath)
	cfg.Store.CacheSizeMB = getInt64Env("PEBBLE_CACHE_MB", cfg.Store.CacheSizeMB)

	cfg.Content.Dir = getEnv("CONTENT_DIR", cfg.Content.Dir)
	cfg.Content.ParseCacheSz = getIntEnv("CONTENT_PARSE_CACHE_SIZE", cfg.Content.ParseCacheSz)

	cfg.Build.DeployHookURL = getEnv("DEPLOY_HOOK_URL", cfg.Build.DeployHookURL)
	cfg.Build.DeployHookTimeout = getDurationEnv("DEPLOY_HOOK_TIMEOUT", cfg.Build.DeployHookTimeout)
	cfg.Build.DeployHookRetries = getIntEnv("DEPLOY_HOOK_RETRIES", cfg.Build.DeployHookRetries)
	cfg.Build.CheckInterval = getDurationEnv("BUILD_CHECK_INTERVAL", cfg.Build.CheckInterval)
	if !getBoolEnv("BUILD_SCHEDULER_ENABLED", true) {
		cfg.Build.CheckInterval = 0
	}

	cfg.Auth.AdminToken = getEnv("ADMIN_TOKEN", cfg.Auth.AdminToken)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	case BackendPebble:
		if c.Store.PebblePath == "" {
			return fmt.Errorf("PEBBLE_PATH is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: postgres, pebble, memory (got %q)", c.Store.Backend)
	}
	if c.Content.Dir == "" {
		return fmt.Errorf("CONTENT_DIR is required")
	}
	if c.Build.CheckInterval < 0 {
		return fmt.Errorf("BUILD_CHECK_INTERVAL must not be negative")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
