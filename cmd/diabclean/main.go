package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"diabclean/internal/config"
	"diabclean/internal/encounters"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "diabclean",
		Short:        "Clean the diabetes 130-US hospitals readmission dataset",
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.String(config.KeyConfig, "", "Config file (YAML, TOML or JSON)")
	pf.String(config.KeyLogLevel, "info", "Log level: debug, info, warn, error")
	pf.String(config.KeyLogFormat, "console", "Log format: console or json")

	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(lookupCmd())
	return rootCmd
}

// loadConfig resolves the command's settings and builds its logger. Logs go
// to the command's stderr.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	v := config.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("bind flags: %w", err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	logger := zerolog.New(w).With().Timestamp().Logger()
	if format != "json" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return logger.Level(lvl), nil
}

// addInputFlags registers the flags every command that reads the raw table
// shares.
func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String(config.KeyInput, "diabetic_data.csv", "Raw encounter CSV")
	f.String(config.KeyEncoding, "utf-8", "Input encoding: utf-8, windows-1252 or iso-8859-1")
	f.StringSlice(config.KeyNAMarkers, encounters.DefaultNAMarkers, "Cell values read as missing")
}

func readInput(cfg *config.Config, log zerolog.Logger) (dataframe.DataFrame, error) {
	start := time.Now()
	df, err := encounters.Read(cfg.Input, encounters.Options{
		NAMarkers: cfg.NAMarkers,
		Encoding:  cfg.Encoding,
	})
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	log.Info().
		Str("input", cfg.Input).
		Int("rows", df.Nrow()).
		Int("cols", df.Ncol()).
		Strs("na_markers", cfg.NAMarkers).
		Dur("elapsed", time.Since(start)).
		Msg("loaded encounters")
	return df, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
