package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const defaultMethodPrefix = "resto.resto_sopwer.page.stock_usage_tool.stock_usage_tool"

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	ERP       ERPConfig
	Usage     UsageConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	MongoDB   MongoDBConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port     string
	LogLevel string
}

// ERPConfig points at the ERP exposing the stock usage methods.
type ERPConfig struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	MethodPrefix string
	Timeout      time.Duration
}

// UsageConfig tunes working sessions.
type UsageConfig struct {
	SessionTTL     time.Duration
	EvictSchedule  string
	LookupTimeout  time.Duration
	StockEntryType string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	ManagerID     string
}

// Enabled reports whether notifications were configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != ""
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the sheet export was configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
	Currency     string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// Enabled reports whether the consumption archive was configured.
func (c MongoDBConfig) Enabled() bool {
	return c.URI != ""
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	erpTimeout, err := durationWithDefault("ERP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := durationWithDefault("USAGE_SESSION_TTL", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	lookupTimeout, err := durationWithDefault("USAGE_LOOKUP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getenvWithDefault("APP_PORT", "8080"),
			LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
		},
		ERP: ERPConfig{
			BaseURL:      os.Getenv("ERP_BASE_URL"),
			APIKey:       os.Getenv("ERP_API_KEY"),
			APISecret:    os.Getenv("ERP_API_SECRET"),
			MethodPrefix: getenvWithDefault("ERP_METHOD_PREFIX", defaultMethodPrefix),
			Timeout:      erpTimeout,
		},
		Usage: UsageConfig{
			SessionTTL:     sessionTTL,
			EvictSchedule:  getenvWithDefault("USAGE_EVICT_SCHEDULE", "@every 10m"),
			LookupTimeout:  lookupTimeout,
			StockEntryType: getenvWithDefault("USAGE_STOCK_ENTRY_TYPE", "Material Issue"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			ManagerID:     os.Getenv("WHATSAPP_MANAGER_ID"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 22 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "Asia/Jakarta"),
			Currency:     getenvWithDefault("CURRENCY", "IDR"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "stockusage"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.ERP.BaseURL == "" {
		return errors.New("ERP_BASE_URL must be provided")
	}
	if (c.ERP.APIKey == "") != (c.ERP.APISecret == "") {
		return errors.New("ERP_API_KEY and ERP_API_SECRET must be provided together")
	}
	if c.ERP.MethodPrefix == "" {
		return errors.New("ERP_METHOD_PREFIX must not be empty")
	}

	if c.Usage.SessionTTL <= 0 {
		return errors.New("USAGE_SESSION_TTL must be positive")
	}
	if c.Usage.EvictSchedule == "" {
		return errors.New("USAGE_EVICT_SCHEDULE must be provided")
	}

	if c.WhatsApp.Enabled() {
		switch {
		case c.WhatsApp.PhoneNumberID == "":
			return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided")
		case c.WhatsApp.BaseURL == "":
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		case c.WhatsApp.APIVersion == "":
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		case c.WhatsApp.ManagerID == "":
			return errors.New("WHATSAPP_MANAGER_ID must be provided")
		}
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}

	if c.Reporting.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
