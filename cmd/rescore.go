package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/autograder/internal/grading"
	"github.com/signalnine/autograder/internal/result"
	"github.com/signalnine/autograder/internal/rubric"
	"github.com/spf13/cobra"
)

var (
	flagRescoreRubric string
	flagRescoreFormat string
)

func newRescoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescore <run-dir>",
		Short: "Recompute scores of a stored run against a rubric",
		Long: "Replay the stored judgments of a run against a (possibly edited) rubric " +
			"without calling the oracle, and store the outcome as a new run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if flagRescoreFormat != "" {
				cfg.Results.Format = flagRescoreFormat
			}
			srcDir, err := filepath.EvalSymlinks(args[0])
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			old, err := result.ReadManifest(srcDir)
			if err != nil {
				return err
			}
			stored, err := result.ReadBreakdowns(srcDir)
			if err != nil {
				return err
			}
			if len(stored) == 0 {
				return fmt.Errorf("no breakdowns in %s", srcDir)
			}

			rubricPath := filepath.Join(srcDir, result.RubricFile)
			if flagRescoreRubric != "" {
				rubricPath = flagRescoreRubric
			}
			rubricText, err := os.ReadFile(rubricPath)
			if err != nil {
				return fmt.Errorf("reading rubric: %w", err)
			}
			r, err := rubric.Parse(string(rubricText))
			if err != nil {
				return fmt.Errorf("parsing rubric %s: %w", rubricPath, err)
			}

			results := grading.Rescore(r, stored)

			runDir, err := result.CreateRunDir(cfg.Results.Dir)
			if err != nil {
				return err
			}
			m := result.NewManifest()
			m.Provider = old.Provider
			m.Model = old.Model
			m.RubricPath = rubricPath
			m.SubmissionsDir = old.SubmissionsDir
			m.AssignmentName = old.AssignmentName
			m.RescoredFrom = old.RunID

			out := cmd.OutOrStdout()
			path, err := writeRun(runDir, string(rubricText), r, results, cfg.Results, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Rescored %d submission(s) from run %s\n", len(results), old.RunID)
			fmt.Fprintf(out, "Run directory: %s\n", runDir)
			printSummary(out, results, 0, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagRescoreRubric, "rubric", "", "rubric to score against (default: the run's rubric)")
	cmd.Flags().StringVar(&flagRescoreFormat, "format", "", "results file format (overrides config)")
	return cmd
}
