// Package config resolves diabclean settings from flags, DIABCLEAN_*
// environment variables, an optional config file and defaults, in that order
// of precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"diabclean/internal/clean"
	"diabclean/internal/icd9"
	"diabclean/internal/textio"
)

// EnvPrefix prefixes every environment variable, e.g. DIABCLEAN_PG.
const EnvPrefix = "DIABCLEAN"

// Keys shared by flags, env and config files.
const (
	KeyConfig        = "config"
	KeyInput         = "input"
	KeyMapping       = "mapping"
	KeyOutput        = "output"
	KeyFormat        = "format"
	KeyEncoding      = "encoding"
	KeyVariant       = "variant"
	KeyNAMarkers     = "na-markers"
	KeyNAOutput      = "na-output"
	KeyDropThreshold = "drop-threshold"
	KeyPG            = "pg"
	KeyPGTable       = "pg-table"
	KeyBatch         = "batch"
	KeyLogLevel      = "log-level"
	KeyLogFormat     = "log-format"
	KeyICD9URL       = "icd9-url"
	KeyICD9Delay     = "icd9-delay"
	KeyTop           = "top"
	KeyCodesOutput   = "codes-out"
)

// Output formats.
const (
	FormatAuto    = "auto"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Config holds the resolved settings of one command run.
type Config struct {
	Input         string        `mapstructure:"input"`
	Mapping       string        `mapstructure:"mapping"`
	Output        string        `mapstructure:"output"`
	Format        string        `mapstructure:"format"`
	Encoding      string        `mapstructure:"encoding"`
	Variant       string        `mapstructure:"variant"`
	NAMarkers     []string      `mapstructure:"na-markers"`
	NAOutput      string        `mapstructure:"na-output"`
	DropThreshold float64       `mapstructure:"drop-threshold"`
	PG            string        `mapstructure:"pg"`
	PGTable       string        `mapstructure:"pg-table"`
	Batch         int           `mapstructure:"batch"`
	LogLevel      string        `mapstructure:"log-level"`
	LogFormat     string        `mapstructure:"log-format"`
	ICD9URL       string        `mapstructure:"icd9-url"`
	ICD9Delay     time.Duration `mapstructure:"icd9-delay"`
	Top           int           `mapstructure:"top"`
	CodesOutput   string        `mapstructure:"codes-out"`
}

// New returns a viper instance with defaults and environment binding set up.
// Callers bind command flags into it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyInput, "diabetic_data.csv")
	v.SetDefault(KeyMapping, "IDs_mapping.csv")
	v.SetDefault(KeyOutput, "cleaned_diabetic_data.csv")
	v.SetDefault(KeyFormat, FormatAuto)
	v.SetDefault(KeyEncoding, textio.UTF8)
	v.SetDefault(KeyVariant, clean.Baseline)
	v.SetDefault(KeyNAMarkers, []string{"?"})
	v.SetDefault(KeyNAOutput, "")
	v.SetDefault(KeyDropThreshold, clean.DefaultDropThreshold)
	v.SetDefault(KeyPG, "")
	v.SetDefault(KeyPGTable, "cleaned_encounters")
	v.SetDefault(KeyBatch, 1000)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyICD9URL, icd9.DefaultBaseURL)
	v.SetDefault(KeyICD9Delay, icd9.DefaultDelay)
	v.SetDefault(KeyTop, 10)
	v.SetDefault(KeyCodesOutput, "icd9_descriptions.csv")
	return v
}

// Load reads the config file named by the config key, if any, and decodes
// every setting.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	markers := cfg.NAMarkers[:0]
	for _, m := range cfg.NAMarkers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	cfg.NAMarkers = markers
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.Variant != "" && !contains(clean.Variants, c.Variant) {
		return fmt.Errorf("variant must be one of %s, got %q", strings.Join(clean.Variants, ", "), c.Variant)
	}
	switch c.Format {
	case "", FormatAuto, FormatCSV, FormatParquet:
	default:
		return fmt.Errorf("format must be auto, csv or parquet, got %q", c.Format)
	}
	if _, err := textio.NormalizeEncoding(c.Encoding); err != nil {
		return err
	}
	if c.DropThreshold < 0 || c.DropThreshold > 1 {
		return fmt.Errorf("drop-threshold must be within [0, 1], got %v", c.DropThreshold)
	}
	if c.Batch <= 0 {
		return fmt.Errorf("batch must be positive, got %d", c.Batch)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log-format must be console or json, got %q", c.LogFormat)
	}
	if c.ICD9Delay < 0 {
		return fmt.Errorf("icd9-delay must not be negative, got %v", c.ICD9Delay)
	}
	if c.Top < 0 {
		return fmt.Errorf("top must not be negative, got %d", c.Top)
	}
	return nil
}

// OutputFormat resolves auto to parquet for .parquet outputs and csv
// otherwise.
func (c *Config) OutputFormat() string {
	if c.Format != "" && c.Format != FormatAuto {
		return c.Format
	}
	if strings.EqualFold(filepath.Ext(c.Output), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
