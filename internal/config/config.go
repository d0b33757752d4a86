// Package config loads shared settings from the environment and the
// per-tenant bot configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/sheetfit/trackerbot/internal/schema"
)

// Config holds settings shared across all tenants.
// Environment variables are parsed from the TRACKER_ prefix.
type Config struct {
	// External API credentials
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	USDAAPIKey   string `envconfig:"USDA_API_KEY" required:"true"`

	GeminiModel string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`

	// Service account JSON for the Sheets API. Either the file path or
	// the raw JSON content must be set; the path wins when both are.
	ServiceAccountFile string `envconfig:"SERVICE_ACCOUNT_FILE" default:""`
	ServiceAccountJSON string `envconfig:"SERVICE_ACCOUNT_JSON" default:""`

	// Tenant config file (JSON list of bot entries)
	TenantsPath string `envconfig:"TENANTS_PATH" default:"bot_configs.json"`

	// HTTP Configuration (health endpoint)
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Telegram long-poll timeout in seconds
	PollTimeout int `envconfig:"POLL_TIMEOUT" default:"30"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Tenants []*schema.Tenant `ignored:"true"`
}

// tenantEntry mirrors one object in the tenants JSON file.
type tenantEntry struct {
	BotToken      string  `json:"bot_token"`
	GoogleSheetID string  `json:"google_sheet_id"`
	WorksheetName string  `json:"worksheet_name"`
	SchemaType    string  `json:"schema_type"`
	AllowedUsers  []int64 `json:"allowed_users"`
}

// New creates a Config by parsing environment variables and loading the
// tenants file. Invalid tenant entries are skipped with a warning;
// an empty tenant set after loading is an error.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("TRACKER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.resolveServiceAccount(); err != nil {
		return nil, err
	}

	tenants, err := loadTenants(cfg.TenantsPath)
	if err != nil {
		return nil, err
	}
	cfg.Tenants = tenants

	log.Info().
		Str("gemini_model", cfg.GeminiModel).
		Int("http_port", cfg.HTTPPort).
		Int("tenants", len(cfg.Tenants)).
		Str("tenants_path", cfg.TenantsPath).
		Msg("Configuration loaded")

	return &cfg, nil
}

// resolveServiceAccount loads the service account key content from the
// configured file path, if one is set.
func (c *Config) resolveServiceAccount() error {
	if c.ServiceAccountFile != "" {
		raw, err := os.ReadFile(c.ServiceAccountFile)
		if err != nil {
			return fmt.Errorf("read service account file %s: %w", c.ServiceAccountFile, err)
		}
		c.ServiceAccountJSON = string(raw)
	}
	if strings.TrimSpace(c.ServiceAccountJSON) == "" {
		return fmt.Errorf("service account credentials are required: set TRACKER_SERVICE_ACCOUNT_FILE or TRACKER_SERVICE_ACCOUNT_JSON")
	}
	return nil
}

func loadTenants(path string) ([]*schema.Tenant, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant config %s: %w", path, err)
	}
	var entries []tenantEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse tenant config %s: %w", path, err)
	}

	tenants := make([]*schema.Tenant, 0, len(entries))
	for i, e := range entries {
		variant := schema.Variant(strings.ToLower(e.SchemaType))
		if variant == "" {
			variant = schema.VariantTemplate
		}
		if variant != schema.VariantTemplate && variant != schema.VariantLegacy {
			log.Warn().Int("index", i).Str("schema_type", e.SchemaType).
				Msg("tenant has unknown schema_type, defaulting to template")
			variant = schema.VariantTemplate
		}

		// Duplicate tokens are not resolved here; schema.NewRegistry
		// rejects them when the service wires its pollers.
		t, err := schema.NewTenant(strings.TrimSpace(e.BotToken), e.GoogleSheetID, e.WorksheetName, variant, e.AllowedUsers)
		if err != nil {
			log.Warn().Int("index", i).Err(err).Msg("skipping invalid tenant entry")
			continue
		}
		tenants = append(tenants, t)
		log.Info().
			Str("sheet_id", t.SheetID).
			Str("worksheet", t.Worksheet).
			Str("variant", string(t.Variant)).
			Int("first_data_row", t.FirstDataRow).
			Msg("Loaded tenant config")
	}

	if len(tenants) == 0 {
		return nil, fmt.Errorf("no valid tenant configurations in %s", path)
	}
	return tenants, nil
}

// NewForTesting creates a config with one template tenant, no env access.
func NewForTesting() *Config {
	t, _ := schema.NewTenant("test-token", "test-sheet", "Sheet1", schema.VariantTemplate, nil)
	return &Config{
		GeminiAPIKey:       "test-gemini-key",
		USDAAPIKey:         "test-usda-key",
		GeminiModel:        "gemini-2.0-flash",
		ServiceAccountJSON: "{}",
		HTTPPort:           8080,
		PollTimeout:        1,
		LogLevel:           "debug",
		Tenants:            []*schema.Tenant{t},
	}
}

// HTTPAddr returns the health server listen address.
func (c *Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }
