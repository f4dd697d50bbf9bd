package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultDBDriver   = "sqlite"
	defaultDBPath     = "./dev.db"
	defaultPort       = "8080"
	defaultEnv        = "development"
	defaultSessionTTL = 12 * time.Hour
	defaultRPS        = 20
	defaultBurst      = 40
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env            string
	Port           string
	DBDriver       string
	DBPath         string
	DatabaseURL    string
	AdminEmail     string
	AdminPassword  string
	SessionTTL     time.Duration
	TariffsFile    string
	LogLevel       slog.Level
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// A missing .env is fine; production injects real environment variables.
	_ = godotenv.Load(".env")

	cfg := Config{
		Env:            getEnv("APP_ENV", defaultEnv),
		Port:           getEnv("PORT", defaultPort),
		DBDriver:       getEnv("DB_DRIVER", defaultDBDriver),
		DBPath:         getEnv("DB_PATH", defaultDBPath),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AdminEmail:     os.Getenv("ADMIN_EMAIL"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		SessionTTL:     getDuration("SESSION_TTL", defaultSessionTTL),
		TariffsFile:    os.Getenv("TARIFFS_FILE"),
		LogLevel:       getLevel("LOG_LEVEL", slog.LevelInfo),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", defaultRPS),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", defaultBurst),
	}

	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		slog.Warn("ADMIN_EMAIL or ADMIN_PASSWORD is not set; API authentication is disabled")
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		slog.Warn("DB_DRIVER is postgres but DATABASE_URL is not set")
	}

	return cfg
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		slog.Warn("invalid number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getLevel(key string, def slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("invalid log level, using default", "key", key, "value", v)
		return def
	}
	return level
}
