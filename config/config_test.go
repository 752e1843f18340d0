package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/generic"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"HTTP_PORT", "DB_PATH", "LOG_LEVEL", "BULK_BATCH_SIZE", "OVERDUE_SWEEP_INTERVAL", "CORS_ORIGINS", "BILLING_CONFIG"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "billing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "billing.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, billing.DefaultBatchSize, cfg.BulkBatchSize)
	assert.Equal(t, time.Hour, cfg.OverdueSweepInterval)
	assert.Len(t, cfg.CORSOrigins, 2)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "3000")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("OVERDUE_SWEEP_INTERVAL", "15m")
	t.Setenv("CORS_ORIGINS", "https://society.example, ")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, 15*time.Minute, cfg.OverdueSweepInterval)
	assert.Equal(t, []string{"https://society.example"}, cfg.CORSOrigins)
}

func TestLoad_YAMLOverridesEnvironment(t *testing.T) {
	// GIVEN: env says 3000, the file says 9090
	clearEnv(t)
	t.Setenv("HTTP_PORT", "3000")
	t.Setenv("BILLING_CONFIG", writeConfig(t, `
http_port: 9090
bulk_batch_size: 5
overdue_sweep_interval: 30m
bill_heads:
  - id: water-a
    code: WTR
    name: Water
    category: utility
    calculation_type: per_unit
    per_unit_rate: "12.50"
    gst: {is_applicable: true, cgst_pct: "9", sgst_pct: "9"}
  - code: CLB
    name: Clubhouse
    category: amenity
    calculation_type: fixed
    fixed_amount: 1500
`))

	// WHEN
	cfg, err := Load()
	require.NoError(t, err)
	specs, err := cfg.ParseBillHeads(factory.NewBillHeadFactory())

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 5, cfg.BulkBatchSize)
	assert.Equal(t, 30*time.Minute, cfg.OverdueSweepInterval)
	require.Len(t, specs, 2)
	assert.Equal(t, "12.5", specs[0].PerUnitRate.String())
	assert.Equal(t, "1500", specs[1].FixedAmount.String())
}

func TestParseBillHeads_RejectsInvalidGST(t *testing.T) {
	clearEnv(t)
	t.Setenv("BILLING_CONFIG", writeConfig(t, `
bill_heads:
  - code: WTR
    name: Water
    category: utility
    calculation_type: fixed
    fixed_amount: "100"
    gst: {is_applicable: true, cgst_pct: "15", sgst_pct: "9"}
`))
	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.ParseBillHeads(factory.NewBillHeadFactory())

	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestRegisterCategories(t *testing.T) {
	// GIVEN: a category that is not a built-in preset
	clearEnv(t)
	t.Setenv("BILLING_CONFIG", writeConfig(t, `
categories:
  - id: guest-parking
    usage_label: Slots
    default_due_days: 7
bill_heads:
  - code: GPK
    name: Guest parking
    category: guest-parking
    calculation_type: per_unit
    per_unit_rate: "50"
`))
	cfg, err := Load()
	require.NoError(t, err)

	// WHEN
	cfg.RegisterCategories()
	specs, err := cfg.ParseBillHeads(factory.NewBillHeadFactory())

	// THEN: the seeded head picks up the configured label and due days
	require.NoError(t, err)
	c, ok := generic.LookupCategory("guest-parking")
	require.True(t, ok)
	assert.Equal(t, "guest-parking", c.Name)
	assert.Equal(t, "Slots", specs[0].Label())
	issue := generic.NewTimePoint(2026, time.October, 1)
	assert.Equal(t, "2026-10-08", specs[0].DueDate(issue).String())
}

func TestValidate_CategoryWithoutID(t *testing.T) {
	cfg := Config{HTTPPort: 8080, DBPath: "x.db", BulkBatchSize: 20, OverdueSweepInterval: time.Minute,
		Categories: []CategoryConfig{{Name: "Nameless"}}}

	assert.Error(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("BILLING_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{HTTPPort: 8080, DBPath: "x.db", BulkBatchSize: 20, OverdueSweepInterval: time.Minute}
	assert.NoError(t, cfg.Validate())

	cfg.BulkBatchSize = 0
	assert.Error(t, cfg.Validate())
}
