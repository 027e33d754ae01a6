package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"ticketsync/internal/errors"
)

// Config holds application configuration, loaded from the environment.
type Config struct {
	// Zendesk API
	ZendeskSubdomain string
	ZendeskEmail     string
	ZendeskAPIToken  string
	// ZendeskBaseURL overrides the subdomain-derived API base, for
	// proxied deployments.
	ZendeskBaseURL string

	// Export destinations
	ExportDir    string // local export directory
	ExportFormat string // "csv" or "xlsx"

	// Google Sheets (remote destination)
	GoogleClientID     string
	GoogleClientSecret string
	SheetID            string
	SheetName          string

	// OAuthDataFile is the JSON file persisting the connected identity's tokens.
	OAuthDataFile string

	// SinkBatchSize is the number of rows buffered before a sink flush.
	SinkBatchSize int

	// FetchPageSize is the upstream page size (Zendesk caps at 100).
	FetchPageSize int
}

// Load reads configuration from environment variables, with .env support.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ZendeskSubdomain:   os.Getenv("ZENDESK_SUBDOMAIN"),
		ZendeskEmail:       os.Getenv("ZENDESK_EMAIL"),
		ZendeskAPIToken:    os.Getenv("ZENDESK_API_TOKEN"),
		ZendeskBaseURL:     os.Getenv("ZENDESK_BASE_URL"),
		ExportDir:          getEnvWithDefault("EXPORT_DIR", "exports"),
		ExportFormat:       strings.ToLower(getEnvWithDefault("EXPORT_FORMAT", "csv")),
		GoogleClientID:     os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
		SheetID:            os.Getenv("GOOGLE_SHEET_ID"),
		SheetName:          getEnvWithDefault("GOOGLE_SHEET_NAME", "Tickets"),
		OAuthDataFile:      getEnvWithDefault("OAUTH_DATA_FILE", "data/oauth_data.json"),
		SinkBatchSize:      getEnvAsIntWithDefault("SINK_BATCH_SIZE", 500),
		FetchPageSize:      getEnvAsIntWithDefault("FETCH_PAGE_SIZE", 100),
	}

	if cfg.ExportFormat != "csv" && cfg.ExportFormat != "xlsx" {
		return nil, errors.NewInvalidRequest("EXPORT_FORMAT must be csv or xlsx")
	}
	if cfg.FetchPageSize < 1 || cfg.FetchPageSize > 100 {
		cfg.FetchPageSize = 100
	}

	return cfg, nil
}

// RequireZendesk validates that the Zendesk credentials are present.
func (c *Config) RequireZendesk() error {
	if c.ZendeskBaseURL == "" && c.ZendeskSubdomain == "" {
		return errors.NewInvalidRequest("ZENDESK_SUBDOMAIN must be set")
	}
	if c.ZendeskEmail == "" || c.ZendeskAPIToken == "" {
		return errors.NewInvalidRequest("ZENDESK_EMAIL and ZENDESK_API_TOKEN must be set")
	}
	return nil
}

// RequireGoogle validates that the Google OAuth client is configured.
func (c *Config) RequireGoogle() error {
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return errors.NewInvalidRequest("GOOGLE_OAUTH_CLIENT_ID and GOOGLE_OAUTH_CLIENT_SECRET must be set")
	}
	if c.SheetID == "" {
		return errors.NewInvalidRequest("GOOGLE_SHEET_ID must be set")
	}
	return nil
}

// getEnvWithDefault returns the environment value, or defaultValue when unset.
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsIntWithDefault returns the environment value as an int, or
// defaultValue when unset or unparsable.
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
