package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"diabclean/internal/clean"
	"diabclean/internal/config"
)

func assessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Profile missing values and categories of the raw table",
		Args:  cobra.NoArgs,
		RunE:  runAssess,
	}
	addInputFlags(cmd)
	cmd.Flags().Int(config.KeyTop, 10, "Number of most frequent diagnosis codes to list (0 for all)")
	return cmd
}

func runAssess(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	df, err := readInput(cfg, log)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d rows, %d columns\n\n", cfg.Input, df.Nrow(), df.Ncol())
	fmt.Fprintf(w, "%-26s %-7s %7s %7s %8s  %s\n", "COLUMN", "TYPE", "NA", "NA%", "DISTINCT", "TOP")
	for _, p := range clean.Assess(df) {
		top := "-"
		if p.TopCount > 0 {
			top = fmt.Sprintf("%s (%d)", truncate(p.Top, 28), p.TopCount)
		}
		fmt.Fprintf(w, "%-26s %-7s %7d %6.1f%% %8d  %s\n",
			p.Name, p.Type, p.NA, p.NARatio*100, p.Distinct, top)
	}

	codes := clean.TopCodes(df, cfg.Top)
	if len(codes) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nMost frequent diagnosis codes:\n")
	for i, c := range codes {
		fmt.Fprintf(w, "  %2d. %-8s %d\n", i+1, c.Code, c.Count)
	}
	return nil
}
