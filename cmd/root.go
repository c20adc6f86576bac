package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/signalnine/autograder/internal/config"
	"github.com/signalnine/autograder/internal/secrets"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	logLevel    string
	envFileFlag string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "autograder",
		Short:        "Grade programming submissions against a rubric with an LLM",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default "+config.DefaultFile+" if present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "dotenv file with provider API keys")
	root.AddCommand(newGradeCmd())
	root.AddCommand(newRubricCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newRescoreCmd())
	return root
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// loadConfig reads --config, or autograder.yaml when present, or falls back
// to the built-in defaults. Secrets from the env file are exported so
// providers can find their keys.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case cfgFile != "":
		c, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		c, err := config.Load(config.DefaultFile)
		if errors.Is(err, fs.ErrNotExist) {
			c = config.Default()
		} else if err != nil {
			return nil, err
		}
		cfg = c
	}

	envFile := cfg.Secrets.EnvFile
	if envFileFlag != "" {
		envFile = envFileFlag
	}
	if envFile != "" {
		names, err := secrets.Export(envFile)
		if err != nil {
			if envFileFlag != "" {
				return nil, err
			}
			slog.Warn("could not load secrets", "file", envFile, "err", err)
		} else {
			slog.Debug("loaded secrets", "file", envFile, "count", len(names))
		}
	}
	return cfg, nil
}
