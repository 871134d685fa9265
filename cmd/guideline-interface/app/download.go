package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDownloadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Replace the storage root with freshly downloaded releases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			p, err := newPipeline(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info("downloading releases",
				zap.String("repository", cfg.Repository.URL),
				zap.String("root", p.storage.Root()),
				zap.Strings("include_versions", cfg.Repository.IncludeVersions),
			)
			paths, err := p.fetch(cmd.Context())
			if err != nil {
				logger.Error("download failed", zap.Error(err))
				return err
			}

			for _, v := range paths.Versions() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", v, paths[v])
			}
			return nil
		},
	}
}
