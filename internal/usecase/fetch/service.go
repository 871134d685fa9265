package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codex-celida/guideline-interface/internal/archive"
	"github.com/codex-celida/guideline-interface/internal/domain"
	"github.com/codex-celida/guideline-interface/internal/metrics"
	"github.com/codex-celida/guideline-interface/internal/repository/release"
)

const lockRetry = 250 * time.Millisecond

// Request describes one fetch run.
type Request struct {
	RepositoryURL   string
	IncludeVersions []string
	// TargetPath is the storage root. Empty means a fresh temporary directory.
	TargetPath string
	// Clean removes earlier content of the root once the lock is held.
	Clean bool
}

// Service downloads and extracts release archives.
type Service struct {
	source      ReleaseSource
	concurrency int
	logger      *zap.Logger
}

// New creates a fetch service. concurrency below 1 means sequential.
func New(source ReleaseSource, concurrency int, logger *zap.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, concurrency: concurrency, logger: logger}
}

// ParseRepository returns owner and repo from a repository URL such as
// https://github.com/<owner>/<repo>.
func ParseRepository(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid repository url %q: %w", repoURL, domain.ErrConfiguration)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository url %q lacks owner/repo: %w", repoURL, domain.ErrConfiguration)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// FetchReleases downloads the selected releases of the repository, extracts
// each into <root>/<tag> and points the latest alias at the latest release.
// Releases are selected when IncludeVersions is empty, when their tag is
// listed, or when they are the latest release.
//
// The root stays locked for the whole run and carries a pending marker
// until every selected release is in place. Each release is extracted into a
// staging directory and moved to <root>/<tag> only once complete.
func (s *Service) FetchReleases(ctx context.Context, req Request) (domain.ReleasePaths, error) {
	owner, repo, err := ParseRepository(req.RepositoryURL)
	if err != nil {
		return nil, err
	}

	root, err := prepareRoot(req.TargetPath)
	if err != nil {
		return nil, err
	}
	storage, err := release.New(root, s.logger)
	if err != nil {
		return nil, err
	}

	unlock, err := storage.Lock(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}
	defer unlock()

	if req.Clean {
		if err := storage.Clean(); err != nil {
			return nil, fmt.Errorf("clean storage root: %v: %w", err, domain.ErrFetch)
		}
	}
	if err := storage.MarkPending(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}

	log := s.logger.With(zap.String("repository", owner+"/"+repo), zap.String("root", storage.Root()))

	releases, err := s.source.ListReleases(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	latestTag, err := s.source.LatestReleaseTag(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("latest release: %w", err)
	}

	selected := selectReleases(releases, req.IncludeVersions, latestTag)
	assets := make([]domain.Asset, len(selected))
	for i, r := range selected {
		a, err := r.Asset()
		if err != nil {
			return nil, err
		}
		assets[i] = a
	}
	log.Info("fetching releases",
		zap.Int("available", len(releases)),
		zap.Int("selected", len(selected)),
		zap.String("latest", latestTag),
	)

	paths := make(domain.ReleasePaths, len(selected)+1)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, r := range selected {
		g.Go(func() error {
			dir, err := s.fetchOne(gctx, storage, r.Tag, assets[i])
			if err != nil {
				return err
			}
			mu.Lock()
			paths[r.Tag] = dir
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if _, ok := paths[latestTag]; ok {
		latestDir, err := storage.LinkLatest(latestTag)
		if err != nil {
			return nil, fmt.Errorf("link latest release: %v: %w", err, domain.ErrFetch)
		}
		paths[domain.LatestAlias] = latestDir
	} else {
		log.Warn("latest release not among fetched releases", zap.String("latest", latestTag))
	}
	if err := storage.ClearPending(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}

	log.Info("releases fetched", zap.Strings("versions", paths.Versions()))
	return paths, nil
}

func (s *Service) fetchOne(ctx context.Context, storage *release.Storage, tag string, asset domain.Asset) (dir string, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ReleasesFetchedTotal.WithLabelValues(status).Inc()
		metrics.ReleaseFetchDuration.Observe(time.Since(start).Seconds())
	}()

	staged, err := storage.StageRelease(tag)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staged)
		}
	}()

	name := filepath.Base(asset.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = tag + ".tgz"
	}
	archivePath := filepath.Join(staged, name)

	size, err := download(ctx, s.source, asset, archivePath)
	if err != nil {
		return "", fmt.Errorf("release %s: %w", tag, err)
	}

	files, err := archive.ExtractTarGzFile(archivePath, staged)
	if err != nil {
		return "", fmt.Errorf("release %s: extract %s: %v: %w", tag, name, err, domain.ErrFetch)
	}

	dir, err = storage.CommitRelease(tag, staged)
	if err != nil {
		return "", fmt.Errorf("release %s: %v: %w", tag, err, domain.ErrFetch)
	}

	s.logger.Info("release extracted",
		zap.String("tag", tag),
		zap.String("asset", name),
		zap.Int64("bytes", size),
		zap.Int("files", files),
		zap.Duration("took", time.Since(start)),
	)
	return dir, nil
}

func download(ctx context.Context, source ReleaseSource, asset domain.Asset, path string) (int64, error) {
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %v: %w", asset.Name, err, domain.ErrFetch)
	}
	n, err := source.DownloadAsset(ctx, asset, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("write %s: %v: %w", asset.Name, closeErr, domain.ErrFetch)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrFetch) {
			err = fmt.Errorf("%w: %w", domain.ErrFetch, err)
		}
		return n, err
	}
	return n, nil
}

func selectReleases(releases []domain.Release, include []string, latestTag string) []domain.Release {
	var out []domain.Release
	seen := make(map[string]bool, len(releases))
	for _, r := range releases {
		if seen[r.Tag] {
			continue
		}
		if len(include) == 0 || r.Tag == latestTag || slices.Contains(include, r.Tag) {
			seen[r.Tag] = true
			out = append(out, r)
		}
	}
	return out
}

func prepareRoot(target string) (string, error) {
	if target == "" {
		dir, err := os.MkdirTemp("", "guideline-releases-")
		if err != nil {
			return "", fmt.Errorf("create temp storage root: %v: %w", err, domain.ErrFetch)
		}
		return dir, nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve storage root %s: %v: %w", target, err, domain.ErrConfiguration)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return "", fmt.Errorf("create storage root %s: %v: %w", abs, err, domain.ErrFetch)
	}
	return abs, nil
}
