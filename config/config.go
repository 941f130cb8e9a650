package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Backend names accepted in StoreConfig.Backend.
const (
	BackendSQLite  = "sqlite"
	BackendParquet = "parquet"
)

// Config holds all configuration for an import run.
type Config struct {
	Import   SourceConfig   `json:"import"`
	HTA      StoreConfig    `json:"hta"`
	Metrics  []MetricConfig `json:"metrics"`
	Importer ImporterConfig `json:"importer"`
	Log      LogConfig      `json:"log"`
}

// SourceConfig holds MySQL connection configuration for the import database.
type SourceConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// StoreConfig selects and locates the destination store.
type StoreConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// MetricConfig maps one output metric to its source table.
type MetricConfig struct {
	// Name is the output metric name, e.g. "elab.ariel.power".
	Name string `json:"name"`
	// ImportName is the source table. Empty means derived from Name.
	ImportName string `json:"import_name"`
	// SamplingRate in Hz, used only by dry-run interval checks.
	SamplingRate float64 `json:"sampling_rate"`
}

// Table returns the source table for this metric. When no import name is
// configured, the table is the metric name with dots replaced by underscores
// (dataheap naming convention).
func (m MetricConfig) Table() string {
	if m.ImportName != "" {
		return m.ImportName
	}
	return strings.ReplaceAll(m.Name, ".", "_")
}

// ImporterConfig holds tunables for the ingestion loop and runner.
type ImporterConfig struct {
	// RowCap is the per-chunk row limit for source range queries.
	RowCap uint64 `json:"row_cap"`
	// Workers is the number of concurrent metric imports.
	Workers int `json:"workers"`
	// MaxConsecutiveDrops aborts an import after this many non-monotonic
	// rows in a row. Zero disables the threshold (drops are still counted
	// and reported).
	MaxConsecutiveDrops uint64 `json:"max_consecutive_drops"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a Config with all default values.
func Default() *Config {
	return &Config{
		Import: SourceConfig{
			Host: "127.0.0.1",
			Port: 3306,
		},
		HTA: StoreConfig{
			Backend: BackendSQLite,
		},
		Importer: ImporterConfig{
			RowCap:  20000000,
			Workers: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON file, applying it over defaults.
// The MySQL password may also be supplied via HTA_IMPORT_MYSQL_PASSWORD,
// which takes precedence over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", path, err)
	}

	if password := os.Getenv("HTA_IMPORT_MYSQL_PASSWORD"); password != "" {
		cfg.Import.Password = password
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for values that would otherwise fail later with
// a less helpful error.
func (c *Config) Validate() error {
	if c.Import.Host == "" {
		return fmt.Errorf("import.host must not be empty")
	}
	if c.Import.Database == "" {
		return fmt.Errorf("import.database must not be empty")
	}
	if c.HTA.Backend != BackendSQLite && c.HTA.Backend != BackendParquet {
		return fmt.Errorf("hta.backend must be %q or %q, got %q", BackendSQLite, BackendParquet, c.HTA.Backend)
	}
	if c.HTA.Path == "" {
		return fmt.Errorf("hta.path must not be empty")
	}
	if c.Importer.RowCap == 0 {
		return fmt.Errorf("importer.row_cap must be greater than zero")
	}
	if c.Importer.Workers <= 0 {
		return fmt.Errorf("importer.workers must be greater than zero")
	}
	seen := make(map[string]bool, len(c.Metrics))
	for _, m := range c.Metrics {
		if m.Name == "" {
			return fmt.Errorf("metric with empty name in metrics list")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate metric %q in metrics list", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// Metric returns the configuration for a named metric, or a derived default
// when the metric is not listed in the config file.
func (c *Config) Metric(name string) MetricConfig {
	for _, m := range c.Metrics {
		if m.Name == name {
			return m
		}
	}
	return MetricConfig{Name: name}
}
