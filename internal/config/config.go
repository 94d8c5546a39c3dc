package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// Backend API
	APIURL     string
	APITimeout time.Duration

	// Client-side persisted state
	PrefsDBPath     string
	PrefsPassphrase string

	// AMQP (optional, empty URL disables event publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Export targets
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	ExportDir             string

	// Auto refresh
	RefreshSchedule string
	Timezone        string

	// Local viewer (empty disables)
	ViewerPort string

	// Dashboard defaults
	TopN         int
	HistoryLimit int
	RecentLimit  int
	RecentDays   int

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		APIURL:     getEnv("FINBOARD_API_URL", "http://localhost:8000"),
		APITimeout: getEnvDuration("FINBOARD_API_TIMEOUT", 30*time.Second),

		PrefsDBPath:     getEnv("PREFS_DB_PATH", "./data/finboard.db"),
		PrefsPassphrase: getEnv("PREFS_PASSPHRASE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finboard"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finboard_events"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "finboard"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		ExportDir:             getEnv("EXPORT_DIR", "./exports"),

		RefreshSchedule: getEnv("REFRESH_SCHEDULE", ""),
		Timezone:        getEnv("TIMEZONE", "Europe/Moscow"),

		ViewerPort: getEnv("VIEWER_PORT", ""),

		TopN:         getEnvInt("TOP_N", 5),
		HistoryLimit: getEnvInt("HISTORY_LIMIT", 500),
		RecentLimit:  getEnvInt("RECENT_LIMIT", 15),
		RecentDays:   getEnvInt("RECENT_DAYS", 7),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate API URL
	if c.APIURL == "" {
		errors = append(errors, "API URL cannot be empty")
	} else if parsedURL, err := url.Parse(c.APIURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': %v", c.APIURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.APITimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at least 1 second", c.APITimeout))
	} else if c.APITimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at most 10 minutes", c.APITimeout))
	}

	// Validate prefs database path
	if c.PrefsDBPath == "" {
		errors = append(errors, "prefs database path cannot be empty")
	} else if c.PrefsDBPath != ":memory:" {
		dir := filepath.Dir(c.PrefsDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create prefs database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Google Sheets export needs credentials and a sheet name
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleCredentialsFile == "" {
			errors = append(errors, "GOOGLE_CREDENTIALS_FILE must be provided when a spreadsheet ID is set")
		} else if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}

	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid refresh schedule '%s': %v", c.RefreshSchedule, err))
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.ViewerPort != "" {
		if port, err := strconv.Atoi(c.ViewerPort); err != nil {
			errors = append(errors, fmt.Sprintf("invalid viewer port '%s': must be a number", c.ViewerPort))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid viewer port %d: must be between 1 and 65535", port))
		}
	}

	if c.TopN != 5 && c.TopN != 10 {
		errors = append(errors, fmt.Sprintf("invalid top N %d: must be 5 or 10", c.TopN))
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > 5000 {
		errors = append(errors, fmt.Sprintf("invalid history limit %d: must be between 1 and 5000", c.HistoryLimit))
	}
	if c.RecentLimit < 1 || c.RecentLimit > 500 {
		errors = append(errors, fmt.Sprintf("invalid recent limit %d: must be between 1 and 500", c.RecentLimit))
	}
	if c.RecentDays < 1 || c.RecentDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid recent days %d: must be between 1 and 366", c.RecentDays))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
