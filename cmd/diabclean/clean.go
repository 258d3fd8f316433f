package main

import (
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"diabclean/internal/clean"
	"diabclean/internal/config"
	"diabclean/internal/encounters"
	"diabclean/internal/mapping"
	"diabclean/internal/store"
)

func cleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Run a cleaning variant and write the cleaned table",
		Long: `Reads the raw encounter CSV and the ID mapping file, applies the
cleaning steps of the chosen variant and writes the result as CSV or Parquet.
With --pg set, the cleaned table and the run report are also loaded into
PostgreSQL.`,
		Args: cobra.NoArgs,
		RunE: runClean,
	}

	addInputFlags(cmd)
	f := cmd.Flags()
	f.String(config.KeyMapping, "IDs_mapping.csv", "ID mapping CSV")
	f.StringP(config.KeyOutput, "o", "cleaned_diabetic_data.csv", "Output path")
	f.String(config.KeyFormat, config.FormatAuto, "Output format: auto, csv or parquet")
	f.String(config.KeyVariant, clean.Baseline, "Cleaning variant: baseline, patient, encoded or full")
	f.String(config.KeyNAOutput, "", "Text written for missing cells in CSV output")
	f.Float64(config.KeyDropThreshold, clean.DefaultDropThreshold, "Drop columns whose missing ratio exceeds this")
	f.String(config.KeyPG, "", "PostgreSQL connection string (empty disables loading)")
	f.String(config.KeyPGTable, "cleaned_encounters", "Target table for the cleaned rows")
	f.Int(config.KeyBatch, 1000, "Rows per COPY transaction")
	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	start := time.Now()

	sections, err := mapping.Load(cfg.Mapping, cfg.Encoding)
	if err != nil {
		return err
	}
	log.Info().
		Str("mapping", cfg.Mapping).
		Int("admission_types", sections.Len(mapping.AdmissionType)).
		Int("discharge_dispositions", sections.Len(mapping.DischargeDisposition)).
		Int("admission_sources", sections.Len(mapping.AdmissionSource)).
		Msg("loaded mapping")

	df, err := readInput(cfg, log)
	if err != nil {
		return err
	}

	pipeline, err := clean.NewPipeline(cfg.Variant, clean.Options{
		Sections:      sections,
		DropThreshold: cfg.DropThreshold,
	})
	if err != nil {
		return err
	}
	out, report, err := pipeline.Run(ctx, df, log)
	if err != nil {
		return err
	}

	if err := writeOutput(cfg, out, log); err != nil {
		return err
	}

	var loaded int64
	if cfg.PG != "" {
		if loaded, err = loadPostgres(cmd, cfg, out, report, log); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nDone in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(w, "  Run:      %s\n", report.RunID)
	fmt.Fprintf(w, "  Variant:  %s\n", report.Variant)
	fmt.Fprintf(w, "  Input:    %s (%d rows, %d cols)\n", cfg.Input, report.RowsIn, report.ColsIn)
	fmt.Fprintf(w, "  Output:   %s (%d rows, %d cols, %s)\n", cfg.Output, report.RowsOut, report.ColsOut, cfg.OutputFormat())
	if cfg.PG != "" {
		fmt.Fprintf(w, "  Postgres: %s (%d rows)\n", cfg.PGTable, loaded)
	}
	fmt.Fprintln(w, "  Steps:")
	for _, st := range report.Steps {
		if st.Skipped {
			fmt.Fprintf(w, "    %-24s skipped: %s\n", st.Name, st.Detail)
			continue
		}
		fmt.Fprintf(w, "    %-24s %7d -> %-7d rows  %3d -> %-3d cols\n",
			st.Name, st.RowsBefore, st.RowsAfter, st.ColsBefore, st.ColsAfter)
	}
	return nil
}

func writeOutput(cfg *config.Config, df dataframe.DataFrame, log zerolog.Logger) error {
	start := time.Now()
	switch cfg.OutputFormat() {
	case config.FormatParquet:
		if _, err := encounters.WriteParquet(df, cfg.Output); err != nil {
			return err
		}
	default:
		if err := encounters.WriteCSV(df, cfg.Output, cfg.NAOutput); err != nil {
			return err
		}
	}
	log.Info().
		Str("output", cfg.Output).
		Str("format", cfg.OutputFormat()).
		Int("rows", df.Nrow()).
		Dur("elapsed", time.Since(start)).
		Msg("wrote cleaned table")
	return nil
}

func loadPostgres(cmd *cobra.Command, cfg *config.Config, df dataframe.DataFrame, report *clean.Report, log zerolog.Logger) (int64, error) {
	ctx := cmd.Context()
	s, err := store.Open(ctx, cfg.PG, log)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	if err := s.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	n, err := s.LoadFrame(ctx, cfg.PGTable, df, cfg.Batch)
	if err != nil {
		return n, err
	}
	if err := s.RecordRun(ctx, report, cfg.Input, cfg.PGTable); err != nil {
		return n, err
	}
	return n, nil
}
