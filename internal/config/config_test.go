package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Input != "diabetic_data.csv" {
		t.Errorf("input = %q", cfg.Input)
	}
	if cfg.Output != "cleaned_diabetic_data.csv" {
		t.Errorf("output = %q", cfg.Output)
	}
	if cfg.Variant != "baseline" {
		t.Errorf("variant = %q", cfg.Variant)
	}
	if !reflect.DeepEqual(cfg.NAMarkers, []string{"?"}) {
		t.Errorf("na-markers = %v", cfg.NAMarkers)
	}
	if cfg.DropThreshold != 0.9 {
		t.Errorf("drop-threshold = %v", cfg.DropThreshold)
	}
	if cfg.Batch != 1000 {
		t.Errorf("batch = %d", cfg.Batch)
	}
	if cfg.ICD9Delay != time.Second {
		t.Errorf("icd9-delay = %v", cfg.ICD9Delay)
	}
	if cfg.PG != "" {
		t.Errorf("pg = %q, want disabled", cfg.PG)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DIABCLEAN_DROP_THRESHOLD", "0.5")
	t.Setenv("DIABCLEAN_NA_MARKERS", "?,NULL")
	t.Setenv("DIABCLEAN_ICD9_DELAY", "250ms")
	t.Setenv("DIABCLEAN_VARIANT", "full")

	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DropThreshold != 0.5 {
		t.Errorf("drop-threshold = %v", cfg.DropThreshold)
	}
	if !reflect.DeepEqual(cfg.NAMarkers, []string{"?", "NULL"}) {
		t.Errorf("na-markers = %v", cfg.NAMarkers)
	}
	if cfg.ICD9Delay != 250*time.Millisecond {
		t.Errorf("icd9-delay = %v", cfg.ICD9Delay)
	}
	if cfg.Variant != "full" {
		t.Errorf("variant = %q", cfg.Variant)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diabclean.yaml")
	content := `variant: encoded
output: out/cleaned.parquet
pg-table: encounters_v2
batch: 250
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := New()
	v.Set(KeyConfig, path)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Variant != "encoded" || cfg.PGTable != "encounters_v2" || cfg.Batch != 250 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.OutputFormat() != FormatParquet {
		t.Errorf("OutputFormat = %q", cfg.OutputFormat())
	}
	// Unset keys keep their defaults.
	if cfg.Mapping != "IDs_mapping.csv" {
		t.Errorf("mapping = %q", cfg.Mapping)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	v := New()
	v.Set(KeyConfig, "/nonexistent/diabclean.yaml")
	if _, err := Load(v); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown variant", func(c *Config) { c.Variant = "aggressive" }, "variant"},
		{"unknown format", func(c *Config) { c.Format = "xlsx" }, "format"},
		{"unknown encoding", func(c *Config) { c.Encoding = "ebcdic" }, "encoding"},
		{"threshold above one", func(c *Config) { c.DropThreshold = 1.5 }, "drop-threshold"},
		{"negative threshold", func(c *Config) { c.DropThreshold = -0.1 }, "drop-threshold"},
		{"zero batch", func(c *Config) { c.Batch = 0 }, "batch"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log-level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log-format"},
		{"negative delay", func(c *Config) { c.ICD9Delay = -time.Second }, "icd9-delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}

	cfg := validConfig(t)
	cfg.DropThreshold = 1
	cfg.Encoding = "cp1252"
	if err := cfg.Validate(); err != nil {
		t.Errorf("boundary values should validate: %v", err)
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		format, output, want string
	}{
		{"auto", "cleaned.csv", FormatCSV},
		{"auto", "cleaned.PARQUET", FormatParquet},
		{"", "cleaned", FormatCSV},
		{"parquet", "cleaned.csv", FormatParquet},
		{"csv", "cleaned.parquet", FormatCSV},
	}
	for _, tt := range tests {
		c := &Config{Format: tt.format, Output: tt.output}
		if got := c.OutputFormat(); got != tt.want {
			t.Errorf("OutputFormat(%q, %q) = %q, want %q", tt.format, tt.output, got, tt.want)
		}
	}
}
