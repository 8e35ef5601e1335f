// Package config loads the service configuration.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file named by CONFIG_FILE, and environment variables.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP Server
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimitRPM   int           `yaml:"rate_limit_rpm"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	MaxSessions    int           `yaml:"max_sessions"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	TrustedProxies []string      `yaml:"trusted_proxies"` // CIDRs allowed to set X-Forwarded-For

	// Filters
	Timezone string `yaml:"timezone"`

	// Fetch cache
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheSize    int           `yaml:"cache_size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Upstream Flynance API
	APIBaseURL  string        `yaml:"api_base_url"`
	APIToken    string        `yaml:"api_token"`
	APITimeout  time.Duration `yaml:"api_timeout"`
	APIRetryMax int           `yaml:"api_retry_max"`

	// Database
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// Memory backend seed
	SeedFile string `yaml:"seed_file"`

	// AMQP
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Google Sheets
	GoogleSpreadsheetID      string        `yaml:"google_spreadsheet_id"`
	GoogleTransactionsSheet  string        `yaml:"google_transactions_sheet"`
	GoogleCategoriesSheet    string        `yaml:"google_categories_sheet"`
	GoogleServiceAccountJSON string        `yaml:"google_service_account_json"`
	GoogleServiceAccountFile string        `yaml:"google_service_account_file"`
	GoogleRowCacheTTL        time.Duration `yaml:"google_row_cache_ttl"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Backend selection
	DataBackend string `yaml:"data_backend"`
}

// Backends lists the accepted DATA_BACKEND values.
var Backends = []string{"memory", "rest", "sheets", "sqlite"}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:         "8081",
		RateLimitRPM: 120,
		SessionTTL:   12 * time.Hour,
		MaxSessions:  10000,

		CacheTTL:     time.Minute,
		CacheSize:    500,
		FetchTimeout: 7 * time.Second,

		APITimeout:  10 * time.Second,
		APIRetryMax: 3,

		SQLiteDBPath: "./data/flynance.db",
		SeedFile:     "./data/seed.json",

		AMQPExchange: "flynance",
		AMQPQueue:    "filter_events",

		GoogleTransactionsSheet: "Transactions",
		GoogleCategoriesSheet:   "Categories",
		GoogleRowCacheTTL:       30 * time.Second,

		LogLevel:  "info",
		LogFormat: "text",

		DataBackend: "memory",
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the
// environment. It only fails when CONFIG_FILE is set and unreadable.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// loadFile overlays a YAML file. ${VAR} references are expanded first.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.TrustedProxies = getEnvList("TRUSTED_PROXIES", c.TrustedProxies)
	c.RateLimitRPM = getEnvInt("RATE_LIMIT_RPM", c.RateLimitRPM)
	c.SessionTTL = getEnvDuration("SESSION_TTL", c.SessionTTL)
	c.MaxSessions = getEnvInt("MAX_SESSIONS", c.MaxSessions)
	c.SecureCookies = getEnvBool("SECURE_COOKIES", c.SecureCookies)

	c.Timezone = getEnv("FLYNANCE_TIMEZONE", c.Timezone)

	c.CacheTTL = getEnvDuration("CACHE_TTL", c.CacheTTL)
	c.CacheSize = getEnvInt("CACHE_SIZE", c.CacheSize)
	c.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", c.FetchTimeout)

	c.APIBaseURL = getEnv("FLYNANCE_API_URL", c.APIBaseURL)
	c.APIToken = getEnv("FLYNANCE_API_TOKEN", c.APIToken)
	c.APITimeout = getEnvDuration("FLYNANCE_API_TIMEOUT", c.APITimeout)
	c.APIRetryMax = getEnvInt("FLYNANCE_API_RETRY_MAX", c.APIRetryMax)

	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)
	c.SeedFile = getEnv("SEED_FILE", c.SeedFile)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleTransactionsSheet = getEnv("GOOGLE_TRANSACTIONS_SHEET", c.GoogleTransactionsSheet)
	c.GoogleCategoriesSheet = getEnv("GOOGLE_CATEGORIES_SHEET", c.GoogleCategoriesSheet)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.GoogleRowCacheTTL = getEnvDuration("GOOGLE_ROW_CACHE_TTL", c.GoogleRowCacheTTL)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.DataBackend = getEnv("DATA_BACKEND", c.DataBackend)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	isValidBackend := false
	for _, backend := range Backends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
		}
	}

	if c.DataBackend == "rest" {
		if c.APIBaseURL == "" {
			errors = append(errors, "FLYNANCE_API_URL is required when using rest backend")
		} else if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid API URL '%s': must be an http or https URL", c.APIBaseURL))
		}
	}
	if c.APIRetryMax < 0 || c.APIRetryMax > 10 {
		errors = append(errors, fmt.Sprintf("invalid API retry max %d: must be between 0 and 10", c.APIRetryMax))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
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

	// Validate Google Sheets configuration if backend is sheets
	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Validate cache and session sizing
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.FetchTimeout < 100*time.Millisecond || c.FetchTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be between 100ms and 1m", c.FetchTimeout))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.MaxSessions < 1 {
		errors = append(errors, fmt.Sprintf("invalid max sessions %d: must be at least 1", c.MaxSessions))
	}
	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
