package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"diabclean/internal/clean"
	"diabclean/internal/config"
	"diabclean/internal/icd9"
	"diabclean/internal/store"
)

func lookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup [code...]",
		Short: "Resolve ICD-9 code descriptions by scraping the search site",
		Long: `Looks up each code on the ICD-9 search site, one request per delay
interval. Without arguments the most frequent diagnosis codes of --input
are looked up. Results are written as code,description CSV; codes that
cannot be resolved get the "Description not found" placeholder.`,
		RunE: runLookup,
	}

	addInputFlags(cmd)
	f := cmd.Flags()
	f.Int(config.KeyTop, 10, "Number of most frequent codes to look up when no codes are given (0 for all)")
	f.String(config.KeyICD9URL, icd9.DefaultBaseURL, "ICD-9 search site base URL")
	f.Duration(config.KeyICD9Delay, icd9.DefaultDelay, "Delay between requests")
	f.String(config.KeyCodesOutput, "icd9_descriptions.csv", "Output CSV for descriptions")
	f.String(config.KeyPG, "", "PostgreSQL connection string (empty disables storing)")
	return cmd
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	start := time.Now()

	codes := args
	if len(codes) == 0 {
		df, err := readInput(cfg, log)
		if err != nil {
			return err
		}
		for _, c := range clean.TopCodes(df, cfg.Top) {
			codes = append(codes, c.Code)
		}
	}
	if len(codes) == 0 {
		return fmt.Errorf("no codes to look up")
	}

	client := icd9.New(
		icd9.WithBaseURL(cfg.ICD9URL),
		icd9.WithDelay(cfg.ICD9Delay),
		icd9.WithLogger(log),
	)
	log.Info().Int("codes", len(codes)).Dur("delay", cfg.ICD9Delay).Msg("looking up descriptions")
	results := client.LookupAll(ctx, codes)

	f, err := os.Create(cfg.CodesOutput)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := icd9.WriteResults(bw, results); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	if cfg.PG != "" {
		s, err := store.Open(ctx, cfg.PG, log)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}
		if _, err := s.UpsertDescriptions(ctx, results); err != nil {
			return err
		}
	}

	found := 0
	for _, r := range results {
		if r.Found {
			found++
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nDone in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(w, "  Codes:    %d requested, %d resolved, %d found\n", len(codes), len(results), found)
	fmt.Fprintf(w, "  Output:   %s\n", cfg.CodesOutput)
	for _, r := range results {
		fmt.Fprintf(w, "    %-8s %s\n", r.Code, truncate(r.Description, 60))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lookup interrupted: %w", err)
	}
	return nil
}
