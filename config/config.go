/*
Package config loads server configuration.

PURPOSE:
  Collects the server settings from three layers, later layers winning:
    1. built-in defaults
    2. environment variables (a .env file in the working directory is
       loaded first when present)
    3. an optional YAML file named by BILLING_CONFIG

  Command-line flags in cmd/server override all three.

ENVIRONMENT:
  HTTP_PORT               listen port (8080)
  DB_PATH                 SQLite path (billing.db), ":memory:" allowed
  LOG_LEVEL               debug | info | warn | error (info)
  BULK_BATCH_SIZE         bills per bulk batch (20)
  OVERDUE_SWEEP_INTERVAL  Go duration between overdue sweeps (1h)
  CORS_ORIGINS            comma separated allowed origins
  BILLING_CONFIG          path of the YAML file

YAML FILE:
  http_port: 9090
  overdue_sweep_interval: 30m
  categories:
    - id: parking
      name: Parking
      usage_label: Slots
      default_due_days: 7
  bill_heads:
    - id: water-a
      code: WTR
      name: Water
      category: utility
      calculation_type: per_unit
      per_unit_rate: "12.50"
      gst: {is_applicable: true, cgst_pct: "9", sgst_pct: "9"}

  bill_heads entries use the factory JSON schema and are validated by
  BillHeadFactory on seeding, so a bad GST rate stops startup.

SEE ALSO:
  - factory/billhead.go: bill head schema
  - cmd/server/main.go: flag overrides
*/
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/generic"
)

// Config holds application configuration.
type Config struct {
	HTTPPort             int           `yaml:"http_port"`
	DBPath               string        `yaml:"db_path"`
	LogLevel             string        `yaml:"log_level"`
	BulkBatchSize        int           `yaml:"bulk_batch_size"`
	OverdueSweepInterval time.Duration `yaml:"overdue_sweep_interval"`
	CORSOrigins          []string      `yaml:"cors_origins"`

	Categories []CategoryConfig `yaml:"categories"`

	// BillHeads are raw bill head documents, decoded by the factory.
	BillHeads []map[string]any `yaml:"bill_heads"`
}

// CategoryConfig adds a bill category beyond the built-in presets.
type CategoryConfig struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	UsageLabel     string `yaml:"usage_label"`
	DefaultDueDays int    `yaml:"default_due_days"`
}

// Load reads .env, the environment, then the YAML file named by
// BILLING_CONFIG.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:             getenvInt("HTTP_PORT", 8080),
		DBPath:               getenv("DB_PATH", "billing.db"),
		LogLevel:             strings.ToLower(getenv("LOG_LEVEL", "info")),
		BulkBatchSize:        getenvInt("BULK_BATCH_SIZE", billing.DefaultBatchSize),
		OverdueSweepInterval: getenvDuration("OVERDUE_SWEEP_INTERVAL", time.Hour),
		CORSOrigins:          splitCSV(getenv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
	}

	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: http_port %d out of range", c.HTTPPort)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path required")
	}
	if c.BulkBatchSize <= 0 {
		return fmt.Errorf("config: bulk_batch_size must be positive")
	}
	if c.OverdueSweepInterval <= 0 {
		return fmt.Errorf("config: overdue_sweep_interval must be positive")
	}
	for i, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("config: categories[%d]: id required", i)
		}
		if cat.DefaultDueDays < 0 {
			return fmt.Errorf("config: categories[%d]: default_due_days must be >= 0", i)
		}
	}
	return nil
}

// RegisterCategories adds the configured categories to the registry. Call
// it before ParseBillHeads so seeded heads pick up their labels.
func (c Config) RegisterCategories() {
	for _, cat := range c.Categories {
		name := cat.Name
		if name == "" {
			name = cat.ID
		}
		label := cat.UsageLabel
		if label == "" {
			label = "Units"
		}
		generic.RegisterCategory(generic.Category{
			ID:             cat.ID,
			Name:           name,
			UsageLabel:     label,
			DefaultDueDays: cat.DefaultDueDays,
		})
	}
}

// ParseBillHeads runs every seeded bill head through the factory.
func (c Config) ParseBillHeads(f *factory.BillHeadFactory) ([]billing.BillHeadSpec, error) {
	specs := make([]billing.BillHeadSpec, 0, len(c.BillHeads))
	for i, doc := range c.BillHeads {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("bill_heads[%d]: %w", i, err)
		}
		spec, err := f.ParseBillHead(data)
		if err != nil {
			return nil, fmt.Errorf("bill_heads[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
