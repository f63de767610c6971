package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NotifyImmediately is the sentinel value for NotifyHour meaning that
// reminders are dispatched right after a menu is created instead of at
// a scheduled hour.
const NotifyImmediately = -1

// Config holds all configuration for the application
type Config struct {
	// Telegram Bot configuration
	BotToken string

	// Order lifecycle configuration
	CutoffHour int
	NotifyHour int

	// Dispatch mode: scheduled reminders instead of direct messages.
	// Reminders can't be updated later, so selections won't be
	// reflected in the original message.
	UseReminders bool

	// Roster filtering
	OnlyLocals bool
	Locale     string

	// Application configuration
	ExternalURL string
	DataDir     string
	Location    *time.Location
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{}

	// Required configurations
	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is required")
	}
	cfg.BotToken = botToken

	// Optional configurations with defaults
	cfg.CutoffHour, err = getEnvInt("CUTOFF_HOUR", 11)
	if err != nil {
		return nil, err
	}
	if cfg.CutoffHour < 0 || cfg.CutoffHour > 23 {
		return nil, fmt.Errorf("CUTOFF_HOUR must be between 0 and 23, got %d", cfg.CutoffHour)
	}

	cfg.NotifyHour, err = getEnvInt("NOTIFY_HOUR", 8)
	if err != nil {
		return nil, err
	}
	if cfg.NotifyHour != NotifyImmediately && (cfg.NotifyHour < 0 || cfg.NotifyHour > 23) {
		return nil, fmt.Errorf("NOTIFY_HOUR must be between 0 and 23 or %d, got %d", NotifyImmediately, cfg.NotifyHour)
	}

	cfg.UseReminders = getEnvBool("USE_REMINDERS", false)
	cfg.OnlyLocals = getEnvBool("ONLY_LOCALS", false)
	cfg.Locale = getEnvWithDefault("LOCALE", "en")
	cfg.ExternalURL = getEnvWithDefault("EXTERNAL_URL", "")
	cfg.DataDir = getEnvWithDefault("DATA_DIR", "./data")

	tz := getEnvWithDefault("TIMEZONE", "Local")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %v", tz, err)
	}

	// Log configuration with sensitive data redacted
	logCfg := *cfg
	if len(logCfg.BotToken) > 8 {
		logCfg.BotToken = logCfg.BotToken[:8] + "...REDACTED..."
	}
	log.Printf("Configuration loaded: %+v", logCfg)
	return cfg, nil
}

// getEnvWithDefault returns the value of the environment variable or the default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt returns the integer value of the environment variable or the default value
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

// getEnvBool returns the boolean value of the environment variable or the default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
