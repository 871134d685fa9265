// Package app wires the guideline interface commands.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/config"
	logpkg "github.com/codex-celida/guideline-interface/internal/logger"
	"github.com/codex-celida/guideline-interface/internal/version"
)

type options struct {
	env string
}

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "guideline-interface",
		Short:         "Serve versioned clinical guideline FHIR resources",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `guideline-interface downloads the release archives of a guideline repository,
indexes the FHIR resources they contain and serves them by resource type,
canonical URL and release version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(),
		"Configuration environment (selects config/<env>.yaml)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newDownloadCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// setup loads configuration and builds the logger for env.
func setup(opts *options) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(opts.env, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}
