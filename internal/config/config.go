package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// Local store
	Backend   string `yaml:"backend"`
	DBPath    string `yaml:"db_path"`
	Namespace string `yaml:"namespace"`

	// Sync client
	AuthorityURL   string        `yaml:"authority_url"`
	AuthorityToken string        `yaml:"authority_token"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
	SyncDebounce   time.Duration `yaml:"sync_debounce"`
	SyncTimeout    time.Duration `yaml:"sync_timeout"`

	// Authority server
	AuthorityAddr        string `yaml:"authority_addr"`
	AuthorityDatabaseURL string `yaml:"authority_database_url"`
	AuthorityJWTSecret   string `yaml:"authority_jwt_secret"`

	// AMQP
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Google Sheets export
	GoogleSpreadsheetID      string `yaml:"google_spreadsheet_id"`
	GoogleServiceAccountFile string `yaml:"google_service_account_file"`
	GoogleServiceAccountJSON string `yaml:"google_service_account_json"`

	Currency          string `yaml:"currency"`
	CarryOverMemoSize int    `yaml:"carryover_memo_size"`
	LogLevel          string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Backend:   BackendSQLite,
		DBPath:    "./data/ledger.db",
		Namespace: "default",

		SyncInterval: 30 * time.Second,
		SyncDebounce: 2 * time.Second,
		SyncTimeout:  15 * time.Second,

		AuthorityAddr: ":8090",

		AMQPExchange: "ledger",
		AMQPQueue:    "ledger_sync",

		Currency:          "EUR",
		CarryOverMemoSize: 240,
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// LEDGER_CONFIG_FILE and finally the environment. Later sources win.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("LEDGER_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Backend = getEnv("LEDGER_BACKEND", c.Backend)
	c.DBPath = getEnv("LEDGER_DB_PATH", c.DBPath)
	c.Namespace = getEnv("LEDGER_NAMESPACE", c.Namespace)

	c.AuthorityURL = getEnv("AUTHORITY_URL", c.AuthorityURL)
	c.AuthorityToken = getEnv("AUTHORITY_TOKEN", c.AuthorityToken)
	c.SyncInterval = getEnvDuration("SYNC_INTERVAL", c.SyncInterval)
	c.SyncDebounce = getEnvDuration("SYNC_DEBOUNCE", c.SyncDebounce)
	c.SyncTimeout = getEnvDuration("SYNC_TIMEOUT", c.SyncTimeout)

	c.AuthorityAddr = getEnv("AUTHORITY_ADDR", c.AuthorityAddr)
	c.AuthorityDatabaseURL = getEnv("AUTHORITY_DATABASE_URL", c.AuthorityDatabaseURL)
	c.AuthorityJWTSecret = getEnv("AUTHORITY_JWT_SECRET", c.AuthorityJWTSecret)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)

	c.Currency = strings.ToUpper(getEnv("LEDGER_CURRENCY", c.Currency))
	c.CarryOverMemoSize = getEnvInt("CARRYOVER_MEMO_SIZE", c.CarryOverMemoSize)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate validates the client configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	switch c.Backend {
	case BackendSQLite:
		if c.DBPath == "" {
			errors = append(errors, "database path cannot be empty when using sqlite backend")
		}
	case BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid backend '%s': must be one of [%s %s]", c.Backend, BackendSQLite, BackendMemory))
	}

	if strings.TrimSpace(c.Namespace) == "" {
		errors = append(errors, "namespace cannot be empty")
	}

	if c.AuthorityURL != "" {
		if parsedURL, err := url.Parse(c.AuthorityURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid authority URL '%s': %v", c.AuthorityURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid authority URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SyncDebounce < 0 {
		errors = append(errors, fmt.Sprintf("invalid sync debounce %v: must not be negative", c.SyncDebounce))
	}
	if c.SyncTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid sync timeout %v: must be positive", c.SyncTimeout))
	}

	errors = append(errors, c.validateAMQP()...)

	if len(c.Currency) != 3 {
		errors = append(errors, fmt.Sprintf("invalid currency '%s': must be an ISO 4217 code", c.Currency))
	}

	if c.CarryOverMemoSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid carry-over memo size %d: must not be negative", c.CarryOverMemoSize))
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	return combine(errors)
}

// ValidateAuthority validates the settings the authority server needs.
func (c *Config) ValidateAuthority() error {
	var errors []string

	if c.AuthorityAddr == "" {
		errors = append(errors, "authority listen address cannot be empty")
	}
	if len(c.AuthorityJWTSecret) < 16 {
		errors = append(errors, "authority JWT secret must be at least 16 characters")
	}
	if c.AuthorityDatabaseURL != "" {
		if parsedURL, err := url.Parse(c.AuthorityDatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid authority database URL: %v", err))
		} else if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid authority database URL scheme '%s': must be 'postgres' or 'postgresql'", parsedURL.Scheme))
		}
	}
	errors = append(errors, c.validateAMQP()...)

	return combine(errors)
}

// SyncEnabled reports whether a remote authority is configured.
func (c *Config) SyncEnabled() bool { return c.AuthorityURL != "" }

// ExportEnabled reports whether Google Sheets export is configured.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != "" && (c.GoogleServiceAccountFile != "" || c.GoogleServiceAccountJSON != "")
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errors []string
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
	return errors
}

func combine(errors []string) error {
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
