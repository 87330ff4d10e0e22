package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenAIConfig holds settings for the fallback URL suggester
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Config holds all configuration for the application
type Config struct {
	HTTPAddr           string
	LogLevel           string
	OpenAI             OpenAIConfig
	CheckTimeout       time.Duration
	UserAgent          string
	BackfillSchedule   string
	BackfillBatch      int
	BackfillRetryAfter time.Duration
	DB                 DBConfig
}

// Load loads the configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		HTTPAddr:           getString("HTTP_ADDR", ":8080"),
		LogLevel:           getString("LOG_LEVEL", "info"),
		CheckTimeout:       getSeconds("IMAGE_CHECK_TIMEOUT", 3*time.Second),
		UserAgent:          getString("IMAGE_USER_AGENT", "Mozilla/5.0 (compatible; WatchService/1.0)"),
		BackfillSchedule:   getString("IMAGE_BACKFILL_SCHEDULE", "0 */30 * * * *"),
		BackfillBatch:      getInt("IMAGE_BACKFILL_BATCH", 25),
		BackfillRetryAfter: getSeconds("IMAGE_BACKFILL_RETRY_AFTER", 24*time.Hour),
	}

	config.OpenAI = OpenAIConfig{
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		BaseURL:     getString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:       getString("OPENAI_MODEL", "gpt-4o-mini"),
		Temperature: getFloat("OPENAI_TEMPERATURE", 0.3),
		MaxTokens:   getInt("OPENAI_MAX_TOKENS", 200),
		Timeout:     getSeconds("OPENAI_TIMEOUT", 30*time.Second),
	}

	// Load database configuration
	config.DB = DBConfig{
		Host:            os.Getenv("DB_HOST"),
		Port:            getInt("DB_PORT", 5432),
		User:            os.Getenv("DB_USER"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        os.Getenv("DB_NAME"),
		SSLMode:         getString("DB_SSL_MODE", "disable"),
		MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: getSeconds("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values that every command depends on
func (c *Config) Validate() error {
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("IMAGE_CHECK_TIMEOUT must be positive")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("OPENAI_TIMEOUT must be positive")
	}
	if c.OpenAI.MaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be positive")
	}
	if c.BackfillBatch <= 0 {
		return fmt.Errorf("IMAGE_BACKFILL_BATCH must be positive")
	}
	if c.BackfillRetryAfter < 0 {
		return fmt.Errorf("IMAGE_BACKFILL_RETRY_AFTER must not be negative")
	}
	return nil
}

// RequireDB validates the database settings needed by the backfill workflow
func (c *Config) RequireDB() error {
	if c.DB.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.DB.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.DB.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.DB.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	return nil
}

// FallbackEnabled reports whether an OpenAI credential is configured
func (c *Config) FallbackEnabled() bool {
	return c.OpenAI.APIKey != ""
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

// getSeconds reads a whole number of seconds
func getSeconds(key string, fallback time.Duration) time.Duration {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return time.Duration(v) * time.Second
	}
	return fallback
}
