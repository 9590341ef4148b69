package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"TalkToDataLoanPro/internal/bucket"
)

const (
	DefaultTimeZone          = "Asia/Kolkata"
	DefaultRecomputeSchedule = "30 2 * * *"
	DefaultHTTPPort          = "8080"
	DefaultMaxUploadMB       = 50
	DefaultMaxEmptyRows      = 20
	DefaultConfigCacheTTL    = 5 * time.Minute
	DefaultSQLitePath        = "loanbook.db"
	RecomputeBatchSize       = 50

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the process configuration read from the environment.
type Config struct {
	Driver     string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSchema   string
	SQLitePath string

	HTTPPort          string
	MaxUploadMB       int
	MaxEmptyRows      int
	ConfigCacheTTL    time.Duration
	RecomputeSchedule string
	TimeZone          string
	LogLevel          string
	ProfileDir        string
	// Buckets holds BUCKET_UNMATCHED and BUCKET_BOUNDS, the treatment of
	// numbers outside every range rule and of closed range upper bounds.
	Buckets bucket.Options
}

// Load reads the environment, filling defaults for anything unset.
func Load() (*Config, error) {
	c := &Config{
		Driver:            strings.ToLower(env("DB_DRIVER", DriverPostgres)),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBHost:            env("DB_HOST", "localhost"),
		DBPort:            env("DB_PORT", "5432"),
		DBName:            os.Getenv("DB_NAME"),
		DBSchema:          os.Getenv("DB_SCHEMA"),
		SQLitePath:        env("SQLITE_PATH", DefaultSQLitePath),
		HTTPPort:          env("HTTP_PORT", DefaultHTTPPort),
		RecomputeSchedule: env("RECOMPUTE_SCHEDULE", DefaultRecomputeSchedule),
		TimeZone:          env("TIMEZONE", DefaultTimeZone),
		LogLevel:          env("LOG_LEVEL", "info"),
		ProfileDir:        os.Getenv("PROFILE_DIR"),
	}

	var err error
	if c.MaxUploadMB, err = envInt("MAX_UPLOAD_MB", DefaultMaxUploadMB); err != nil {
		return nil, err
	}
	if c.MaxEmptyRows, err = envInt("MAX_EMPTY_ROWS", DefaultMaxEmptyRows); err != nil {
		return nil, err
	}
	c.ConfigCacheTTL = DefaultConfigCacheTTL
	if v := os.Getenv("CONFIG_CACHE_TTL"); v != "" {
		if c.ConfigCacheTTL, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("CONFIG_CACHE_TTL: %w", err)
		}
	}

	if c.Buckets.Unmatched, err = bucket.ParseUnmatched(os.Getenv("BUCKET_UNMATCHED")); err != nil {
		return nil, fmt.Errorf("BUCKET_UNMATCHED: %w", err)
	}
	if c.Buckets.Bounds, err = bucket.ParseBounds(os.Getenv("BUCKET_BOUNDS")); err != nil {
		return nil, fmt.Errorf("BUCKET_BOUNDS: %w", err)
	}

	switch c.Driver {
	case DriverPostgres:
		if c.DBName == "" {
			return nil, fmt.Errorf("DB_NAME is required for the postgres driver")
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("DB_DRIVER %q is not supported (postgres or sqlite)", c.Driver)
	}
	return c, nil
}

// PostgresDSN renders the lib/pq and pgx connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Location resolves TimeZone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
