package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Path store backends
const (
	PathStoreMemory = "memory"
	PathStoreRedis  = "redis"
)

// Config holds all configuration for mot-engine
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	PathStore   PathStoreConfig
	Content     ContentConfig
	Sessions    SessionsConfig
	Leaderboard LeaderboardConfig
	Cleanup     CleanupConfig
	Auth        AuthConfig
	Log         LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DatabaseConfig selects and tunes the score and session store
type DatabaseConfig struct {
	Driver        string
	DSN           string
	SQLitePath    string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// PathStoreConfig holds in-progress player path storage configuration
type PathStoreConfig struct {
	Backend string
	TTL     time.Duration
}

// ContentConfig holds edition content configuration
type ContentConfig struct {
	Dir            string
	DefaultEdition string
}

// SessionsConfig holds game session defaults
type SessionsConfig struct {
	TTL        time.Duration
	CodeLength int
}

// LeaderboardConfig holds leaderboard query and cache settings
type LeaderboardConfig struct {
	Limit     int
	CacheSize int
	CacheTTL  time.Duration
}

// CleanupConfig holds cleanup worker configuration
type CleanupConfig struct {
	Interval time.Duration
}

// AuthConfig holds the bootstrap facilitator key
type AuthConfig struct {
	AdminAPIKey string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level slog.Level
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Driver:        strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
			DSN:           getEnv("DATABASE_DSN", ""),
			SQLitePath:    getEnv("SQLITE_PATH", "./data/mot.db"),
			MaxOpenConns:  getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:  getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 2),
			MaxLifetime:   getEnvAsDuration("DATABASE_MAX_LIFETIME", time.Hour),
			MigrationsDir: getEnv("MIGRATIONS_DIR", ""),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		PathStore: PathStoreConfig{
			Backend: strings.ToLower(getEnv("PATH_STORE", PathStoreMemory)),
			TTL:     getEnvAsDuration("PATH_TTL", 24*time.Hour),
		},
		Content: ContentConfig{
			Dir:            getEnv("CONTENT_DIR", "./content"),
			DefaultEdition: getEnv("DEFAULT_EDITION", "leader"),
		},
		Sessions: SessionsConfig{
			TTL:        getEnvAsDuration("SESSION_TTL", 4*time.Hour),
			CodeLength: getEnvAsInt("SESSION_CODE_LENGTH", 6),
		},
		Leaderboard: LeaderboardConfig{
			Limit:     getEnvAsInt("LEADERBOARD_LIMIT", 50),
			CacheSize: getEnvAsInt("LEADERBOARD_CACHE_SIZE", 256),
			CacheTTL:  getEnvAsDuration("LEADERBOARD_CACHE_TTL", 5*time.Second),
		},
		Cleanup: CleanupConfig{
			Interval: getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
		},
		Auth: AuthConfig{
			AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		},
		Log: LogConfig{
			Level: getEnvAsLogLevel("LOG_LEVEL", slog.LevelInfo),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	switch c.PathStore.Backend {
	case PathStoreMemory:
	case PathStoreRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis path store")
		}
	default:
		return fmt.Errorf("unknown path store: %q", c.PathStore.Backend)
	}

	if c.Content.Dir == "" {
		return fmt.Errorf("content directory is required")
	}

	if c.Sessions.CodeLength < 4 || c.Sessions.CodeLength > 12 {
		return fmt.Errorf("session code length must be between 4 and 12: %d", c.Sessions.CodeLength)
	}

	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive: %s", c.Sessions.TTL)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getEnvAsLogLevel(key string, defaultValue slog.Level) slog.Level {
	if value, exists := os.LookupEnv(key); exists {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err == nil {
			return level
		}
	}
	return defaultValue
}
