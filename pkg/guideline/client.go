package guideline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/domain"
	"github.com/codex-celida/guideline-interface/internal/repository/release"
	"github.com/codex-celida/guideline-interface/internal/transport/github"
	"github.com/codex-celida/guideline-interface/internal/usecase/fetch"
	healthuc "github.com/codex-celida/guideline-interface/internal/usecase/health"
	"github.com/codex-celida/guideline-interface/internal/usecase/index"
	resourceuc "github.com/codex-celida/guideline-interface/internal/usecase/resource"
)

// Client serves guideline resources from releases materialized on disk.
// It is safe for concurrent use; lookups never block on Refresh.
type Client struct {
	repositoryURL   string
	includeVersions []string

	storage   *release.Storage
	ephemeral bool
	fetcher   *fetch.Service
	indexer   *index.Service
	resources *resourceuc.Service
	healthSvc *healthuc.Service
	obs       *observer

	mu sync.Mutex // serializes Refresh
}

// New creates a Client and loads its first store. Releases already present
// in the storage directory are reused unless an earlier fetch into it was
// interrupted; otherwise they are downloaded.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if _, _, err := fetch.ParseRepository(cfg.repositoryURL); err != nil {
		return nil, fmt.Errorf("guideline: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	ephemeral := cfg.storagePath == ""
	if ephemeral {
		dir, err := os.MkdirTemp("", "guideline-*")
		if err != nil {
			return nil, fmt.Errorf("guideline: create storage: %w", err)
		}
		cfg.storagePath = dir
	}
	storage, err := release.New(cfg.storagePath, nil)
	if err != nil {
		return nil, fmt.Errorf("guideline: %w", err)
	}

	source := github.NewClient(&github.Config{
		BaseURL:            cfg.apiBaseURL,
		Username:           cfg.username,
		Token:              cfg.token,
		Timeout:            cfg.timeout,
		InsecureSkipVerify: cfg.insecure,
	})

	resources := resourceuc.New()
	c := &Client{
		repositoryURL:   cfg.repositoryURL,
		includeVersions: cfg.includeVersions,
		storage:         storage,
		ephemeral:       ephemeral,
		fetcher:         fetch.New(source, cfg.concurrency, zap.NewNop()),
		indexer:         index.New(zap.NewNop()),
		resources:       resources,
		healthSvc:       healthuc.New(resources, storage),
		obs:             obs,
	}

	if err := c.load(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) load(ctx context.Context) (err error) {
	defer func(start time.Time) { c.obs.observe(opLoad, start, err) }(time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.storage.Ensure(); err != nil {
		return fmt.Errorf("guideline: %w", err)
	}
	paths, err := c.storage.Scan()
	if err != nil {
		return fmt.Errorf("guideline: scan storage: %w", err)
	}
	pending, err := c.storage.Pending()
	if err != nil {
		return fmt.Errorf("guideline: %w", err)
	}
	if pending || len(paths) == 0 {
		return c.download(ctx)
	}
	return c.publish(ctx, paths)
}

// Refresh downloads the releases again and swaps in a new store.
// The previous store keeps serving until the new one is complete; on
// failure it stays in place.
func (c *Client) Refresh(ctx context.Context) (err error) {
	defer func(start time.Time) { c.obs.observe(opRefresh, start, err) }(time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.download(ctx)
}

func (c *Client) download(ctx context.Context) error {
	paths, err := c.fetcher.FetchReleases(ctx, fetch.Request{
		RepositoryURL:   c.repositoryURL,
		IncludeVersions: c.includeVersions,
		TargetPath:      c.storage.Root(),
		Clean:           true,
	})
	if err != nil {
		return fmt.Errorf("guideline: %w", err)
	}
	return c.publish(ctx, paths)
}

// publish indexes paths and swaps the store in. Releases that fail to
// index are logged and left out.
func (c *Client) publish(ctx context.Context, paths domain.ReleasePaths) error {
	st, err := c.indexer.Build(ctx, paths)
	if st == nil {
		return fmt.Errorf("guideline: %w", err)
	}
	if err != nil && c.obs.logger != nil {
		c.obs.logger.Warn("some releases were not indexed", "error", err)
	}
	c.resources.Publish(st)
	return nil
}

// Versions lists the servable versions: latest first, then release tags
// newest first.
func (c *Client) Versions(_ context.Context) (versions []string, err error) {
	defer func(start time.Time) { c.obs.observe(opVersions, start, err) }(time.Now())
	return c.resources.Versions()
}

// Resource returns the stored JSON of the resource with the given type and
// canonical URL in version. An empty version means Latest.
func (c *Client) Resource(_ context.Context, version, resourceType, url string) (raw json.RawMessage, err error) {
	defer func(start time.Time) { c.obs.observe(opResource, start, err) }(time.Now())

	if url == "" {
		return nil, errors.New("guideline: url is required")
	}
	doc, err := c.resources.Get(version, resourceType, url)
	if err != nil {
		return nil, err
	}
	return doc.Raw, nil
}

// Close releases the temporary storage of a client created without
// WithStorage. Materialized releases in a configured storage are kept.
func (c *Client) Close() error {
	if !c.ephemeral {
		return nil
	}
	if err := os.RemoveAll(c.storage.Root()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("guideline: remove storage: %w", err)
	}
	return nil
}
