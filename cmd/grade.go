package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/signalnine/autograder/internal/assignment"
	"github.com/signalnine/autograder/internal/config"
	"github.com/signalnine/autograder/internal/grading"
	"github.com/signalnine/autograder/internal/identity"
	"github.com/signalnine/autograder/internal/metrics"
	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/result"
	"github.com/signalnine/autograder/internal/rubric"
	"github.com/signalnine/autograder/internal/submission"
	"github.com/spf13/cobra"
)

type gradeOpts struct {
	rubric         string
	submissions    string
	assignmentPDF  string
	assignmentText string
	output         string
	format         string
	parallel       int
	model          string
	sort           string
}

func newGradeCmd() *cobra.Command {
	o := &gradeOpts{}
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade every submission in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrade(cmd, o)
		},
	}
	cmd.Flags().StringVar(&o.rubric, "rubric", "", "rubric file")
	cmd.Flags().StringVar(&o.submissions, "submissions", "", "directory of submissions")
	cmd.Flags().StringVar(&o.assignmentPDF, "assignment-pdf", "", "assignment description as PDF")
	cmd.Flags().StringVar(&o.assignmentText, "assignment", "", "assignment description as text or markdown")
	cmd.Flags().StringVar(&o.output, "output", "", "results directory (overrides config)")
	cmd.Flags().StringVar(&o.format, "format", "", "results file format (table, markdown, json, csv, tsv)")
	cmd.Flags().IntVar(&o.parallel, "parallel", 0, "submissions graded concurrently")
	cmd.Flags().StringVar(&o.model, "model", "", "model name or alias")
	cmd.Flags().StringVar(&o.sort, "sort", "", "row order (student, source, score)")
	cmd.MarkFlagRequired("rubric")
	cmd.MarkFlagRequired("submissions")
	return cmd
}

// apply copies set flags over the config.
func (o *gradeOpts) apply(cfg *config.Config) {
	if o.assignmentPDF != "" {
		cfg.Assignment.PDF = o.assignmentPDF
	}
	if o.assignmentText != "" {
		cfg.Assignment.Text = o.assignmentText
	}
	if o.output != "" {
		cfg.Results.Dir = o.output
	}
	if o.format != "" {
		cfg.Results.Format = o.format
	}
	if o.parallel > 0 {
		cfg.Grading.Concurrency = o.parallel
	}
	if o.model != "" {
		cfg.Oracle.Model = o.model
	}
	if o.sort != "" {
		cfg.Results.Sort = o.sort
	}
}

func runGrade(cmd *cobra.Command, o *gradeOpts) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rubricText, err := os.ReadFile(o.rubric)
	if err != nil {
		return fmt.Errorf("reading rubric: %w", err)
	}
	r, err := rubric.Parse(string(rubricText))
	if err != nil {
		return fmt.Errorf("parsing rubric %s: %w", o.rubric, err)
	}
	ids, err := identity.New(cfg.Identity.Patterns)
	if err != nil {
		return err
	}
	subs, err := submission.Load(o.submissions, cfg.Grading.Extensions)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return fmt.Errorf("no submissions found in %s", o.submissions)
	}
	asg, err := loadAssignment(ctx, cfg)
	if err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run directory: %s\n", runDir)

	usageFile, err := os.Create(filepath.Join(runDir, result.UsageFile))
	if err != nil {
		return fmt.Errorf("creating usage log: %w", err)
	}
	defer usageFile.Close()
	usage := oracle.NewUsageLog(usageFile)

	provider, p, modelName, err := cfg.ResolveModel()
	if err != nil {
		return err
	}
	apiKey := p.APIKey()
	if apiKey == "" && p.APIKeyEnv != "" {
		slog.Warn("no API key found", "provider", provider, "env", p.APIKeyEnv)
	}
	orc, err := oracle.NewOpenAI(oracle.OpenAIConfig{
		Provider:         provider,
		BaseURL:          p.BaseURL,
		APIKey:           apiKey,
		Model:            modelName,
		Temperature:      cfg.Oracle.Temperature,
		MaxTokens:        cfg.Oracle.MaxTokens,
		JSONMode:         cfg.Oracle.JSONMode,
		AssignmentName:   asg.Name,
		AssignmentPrompt: asg.Prompt,
		Language:         cfg.Grading.Language,
		Usage:            usage,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	adapter := oracle.NewAdapter(orc,
		oracle.WithTimeout(cfg.Oracle.Timeout),
		oracle.WithMaxAttempts(cfg.Oracle.MaxAttempts),
		oracle.WithBackoff(cfg.Oracle.BackoffInitial, cfg.Oracle.BackoffMax),
		oracle.WithConcurrency(cfg.Grading.OracleConcurrency),
		oracle.WithRateLimit(cfg.Oracle.RateLimit, 1),
		oracle.WithMemo(cfg.Oracle.MemoSize),
		oracle.WithObserver(m),
	)
	engine := grading.New(adapter, ids,
		grading.WithConcurrency(cfg.Grading.Concurrency),
		grading.WithConcurrentCriteria(cfg.Grading.ConcurrentCriteria),
		grading.WithMaxSubmissionChars(cfg.Grading.MaxSubmissionChars),
		grading.WithProgress(progressPrinter(out)),
	)

	fmt.Fprintf(out, "Grading %d submission(s) against %d criteria with %s/%s\n",
		len(subs), len(r.Criteria()), provider, modelName)
	start := time.Now()
	results := engine.GradeAll(ctx, r, subs)
	elapsed := time.Since(start)

	manifest := result.NewManifest()
	manifest.Provider = provider
	manifest.Model = modelName
	manifest.RubricPath = o.rubric
	manifest.SubmissionsDir = o.submissions
	manifest.AssignmentName = asg.Name
	manifest.DurationS = int(elapsed.Seconds())
	records := usage.Records()
	manifest.InputTokens, manifest.OutputTokens = oracle.TotalUsage(records)
	manifest.TotalCostUSD = usageCost(cfg, records)

	for _, res := range results {
		m.ObserveSubmission(string(res.Status), res.RawScore, res.TotalPoints)
	}
	m.ObserveTokens(manifest.InputTokens, manifest.OutputTokens)
	m.SetRunDuration(elapsed)

	path, err := writeRun(runDir, string(rubricText), r, results, cfg.Results, manifest)
	if err != nil {
		return err
	}
	if err := m.WriteFile(filepath.Join(runDir, result.MetricsFile)); err != nil {
		slog.Warn("could not write metrics", "err", err)
	}
	printSummary(out, results, manifest.TotalCostUSD, path)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("grading interrupted: %w", err)
	}
	return nil
}

// loadAssignment reads the assignment description named in cfg, preferring
// the PDF. No assignment is not an error.
func loadAssignment(ctx context.Context, cfg *config.Config) (assignment.Assignment, error) {
	path := cfg.Assignment.PDF
	if path == "" {
		path = cfg.Assignment.Text
	}
	if path == "" {
		return assignment.Assignment{}, nil
	}
	a, err := assignment.Load(ctx, path, cfg.Assignment.Image)
	if err != nil {
		return assignment.Assignment{}, fmt.Errorf("loading assignment: %w", err)
	}
	slog.Info("loaded assignment", "name", a.Name, "chars", len(a.Prompt))
	return a, nil
}
