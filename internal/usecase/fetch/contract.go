package fetch

import (
	"context"
	"io"

	"github.com/codex-celida/guideline-interface/internal/domain"
)

// ReleaseSource lists and downloads published releases of a repository.
type ReleaseSource interface {
	ListReleases(ctx context.Context, owner, repo string) ([]domain.Release, error)
	LatestReleaseTag(ctx context.Context, owner, repo string) (string, error)
	DownloadAsset(ctx context.Context, asset domain.Asset, w io.Writer) (int64, error)
}
