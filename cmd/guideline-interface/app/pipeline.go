package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/config"
	"github.com/codex-celida/guideline-interface/internal/domain"
	"github.com/codex-celida/guideline-interface/internal/domain/store"
	logpkg "github.com/codex-celida/guideline-interface/internal/logger"
	"github.com/codex-celida/guideline-interface/internal/repository/release"
	"github.com/codex-celida/guideline-interface/internal/transport/github"
	"github.com/codex-celida/guideline-interface/internal/usecase/fetch"
	"github.com/codex-celida/guideline-interface/internal/usecase/index"
)

// pipeline materializes releases on disk and indexes them.
type pipeline struct {
	repo    config.RepositoryConfig
	storage *release.Storage
	fetcher *fetch.Service
	indexer *index.Service
	logger  *zap.Logger
}

func newPipeline(cfg config.Config, logger *zap.Logger) (*pipeline, error) {
	storage, err := release.New(cfg.Storage.Path, logpkg.Component(logger, "storage"))
	if err != nil {
		return nil, err
	}

	client := github.NewClient(&github.Config{
		BaseURL:            cfg.Repository.APIBaseURL,
		Username:           cfg.Repository.Username,
		Token:              cfg.Repository.Token,
		Timeout:            time.Duration(cfg.Fetch.TimeoutSec) * time.Second,
		InsecureSkipVerify: cfg.Fetch.InsecureSkipVerify,
		Logger:             logpkg.Component(logger, "github"),
	})

	return &pipeline{
		repo:    cfg.Repository,
		storage: storage,
		fetcher: fetch.New(client, cfg.Fetch.Concurrency, logpkg.Component(logger, "fetch")),
		indexer: index.New(logpkg.Component(logger, "index")),
		logger:  logger,
	}, nil
}

// fetch replaces the content of the storage root with freshly downloaded releases.
func (p *pipeline) fetch(ctx context.Context) (domain.ReleasePaths, error) {
	if err := p.storage.Ensure(); err != nil {
		return nil, err
	}
	return p.fetcher.FetchReleases(ctx, fetch.Request{
		RepositoryURL:   p.repo.URL,
		IncludeVersions: p.repo.IncludeVersions,
		TargetPath:      p.storage.Root(),
		Clean:           true,
	})
}

// releases reuses releases already materialized in the storage root and
// fetches only when there are none, or the last fetch was interrupted, and
// fetching on start is enabled.
func (p *pipeline) releases(ctx context.Context) (domain.ReleasePaths, error) {
	paths, err := p.storage.Scan()
	if err != nil {
		return nil, fmt.Errorf("scan storage root: %w", err)
	}
	pending, err := p.storage.Pending()
	if err != nil {
		return nil, err
	}
	if pending {
		if !p.repo.FetchOnStart {
			return nil, fmt.Errorf("storage root %s holds an interrupted fetch: %w",
				p.storage.Root(), domain.ErrFetch)
		}
		p.logger.Warn("storage root holds an interrupted fetch, fetching again",
			zap.String("root", p.storage.Root()),
			zap.Strings("versions", paths.Versions()),
		)
		return p.fetch(ctx)
	}
	if len(paths) > 0 {
		p.logger.Info("using materialized releases",
			zap.String("root", p.storage.Root()),
			zap.Strings("versions", paths.Versions()),
		)
		return paths, nil
	}
	if !p.repo.FetchOnStart {
		p.logger.Warn("storage root holds no releases and fetch_on_start is disabled",
			zap.String("root", p.storage.Root()))
		return paths, nil
	}
	return p.fetch(ctx)
}

// run produces the store to serve. Per-release index errors are logged and
// the remaining releases are served; anything else is fatal.
func (p *pipeline) run(ctx context.Context) (*store.Store, error) {
	paths, err := p.releases(ctx)
	if err != nil {
		return nil, err
	}

	st, err := p.indexer.Build(ctx, paths)
	if st == nil {
		return nil, err
	}
	if err != nil {
		p.logger.Error("some releases were not indexed", zap.Error(err))
	}
	return st, nil
}
