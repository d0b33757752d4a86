package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetfit/trackerbot/internal/schema"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_FromEnvironment(t *testing.T) {
	tenants := writeFile(t, "bots.json", `[
		{"bot_token": "tok-1", "google_sheet_id": "sheet-1", "schema_type": "template"},
		{"bot_token": "tok-2", "google_sheet_id": "sheet-2", "worksheet_name": "Log", "schema_type": "legacy", "allowed_users": [11, 22]}
	]`)
	sa := writeFile(t, "sa.json", `{"type": "service_account"}`)

	t.Setenv("TRACKER_GEMINI_API_KEY", "g-key")
	t.Setenv("TRACKER_USDA_API_KEY", "u-key")
	t.Setenv("TRACKER_SERVICE_ACCOUNT_FILE", sa)
	t.Setenv("TRACKER_TENANTS_PATH", tenants)
	t.Setenv("TRACKER_HTTP_PORT", "9090")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, `{"type": "service_account"}`, cfg.ServiceAccountJSON)
	assert.Equal(t, ":9090", cfg.HTTPAddr())
	require.Len(t, cfg.Tenants, 2)
	assert.Equal(t, schema.VariantLegacy, cfg.Tenants[1].Variant)
	assert.Equal(t, "Log", cfg.Tenants[1].Worksheet)
}

func TestNew_MissingRequiredKeyFails(t *testing.T) {
	// t.Setenv registers the restore; the variable must be truly unset
	// for envconfig's required check to trip.
	t.Setenv("TRACKER_GEMINI_API_KEY", "placeholder")
	require.NoError(t, os.Unsetenv("TRACKER_GEMINI_API_KEY"))
	t.Setenv("TRACKER_USDA_API_KEY", "u-key")

	_, err := New()
	assert.Error(t, err)
}

func TestNew_MissingServiceAccountFails(t *testing.T) {
	tenants := writeFile(t, "bots.json", `[{"bot_token": "tok", "google_sheet_id": "sheet"}]`)
	t.Setenv("TRACKER_GEMINI_API_KEY", "g-key")
	t.Setenv("TRACKER_USDA_API_KEY", "u-key")
	t.Setenv("TRACKER_TENANTS_PATH", tenants)
	t.Setenv("TRACKER_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("TRACKER_SERVICE_ACCOUNT_JSON", "")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service account")
}

func TestLoadTenants_SkipsInvalidEntries(t *testing.T) {
	path := writeFile(t, "bots.json", `[
		{"bot_token": "", "google_sheet_id": "sheet-1"},
		{"bot_token": "tok-1", "google_sheet_id": ""},
		{"bot_token": "tok-2", "google_sheet_id": "sheet-2"}
	]`)

	tenants, err := loadTenants(path)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "sheet-2", tenants[0].SheetID)
}

func TestLoadTenants_UnknownSchemaTypeDefaultsToTemplate(t *testing.T) {
	path := writeFile(t, "bots.json", `[
		{"bot_token": "tok", "google_sheet_id": "sheet", "schema_type": "v9"}
	]`)

	tenants, err := loadTenants(path)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, schema.VariantTemplate, tenants[0].Variant)
}

func TestLoadTenants_DuplicateTokensRejectedByRegistry(t *testing.T) {
	path := writeFile(t, "bots.json", `[
		{"bot_token": "tok", "google_sheet_id": "sheet-1"},
		{"bot_token": "tok", "google_sheet_id": "sheet-2"}
	]`)

	// Loading keeps both entries; indexing them is what fails.
	tenants, err := loadTenants(path)
	require.NoError(t, err)
	require.Len(t, tenants, 2)

	_, err = schema.NewRegistry(tenants)
	assert.Error(t, err)
}

func TestLoadTenants_EmptySetIsAnError(t *testing.T) {
	path := writeFile(t, "bots.json", `[{"bot_token": "", "google_sheet_id": ""}]`)
	_, err := loadTenants(path)
	assert.Error(t, err)

	_, err = loadTenants(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
