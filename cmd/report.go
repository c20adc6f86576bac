package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/signalnine/autograder/internal/report"
	"github.com/spf13/cobra"
)

var (
	flagFormat  string
	flagPricing string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Re-render the results of a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			pricingPath := cfg.Pricing.File
			if flagPricing != "" {
				pricingPath = flagPricing
			}
			return report.Generate(resolved, flagFormat, cmd.OutOrStdout(), pricingPath)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json, csv, tsv)")
	cmd.Flags().StringVar(&flagPricing, "pricing", "", "pricing file used to cost recorded usage")
	return cmd
}
