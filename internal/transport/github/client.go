// Package github is the release source: it lists releases of a GitHub
// repository, resolves the latest tag and downloads release assets.
package github

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/domain"
	"github.com/codex-celida/guideline-interface/internal/metrics"
)

const (
	// DefaultBaseURL is the public GitHub REST API.
	DefaultBaseURL = "https://api.github.com"
	// DefaultTimeout bounds every upstream request.
	DefaultTimeout = 10 * time.Second

	userAgent = "guideline-interface"
	perPage   = 100
	maxPages  = 50
)

// Config holds the release source settings.
type Config struct {
	BaseURL            string
	Username           string
	Token              string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Logger             *zap.Logger
}

// Client talks to the GitHub releases API.
type Client struct {
	baseURL  string
	username string
	token    string
	maxPages int
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a release API client.
func NewClient(cfg *Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		//nolint:gosec // opt-in for upstreams behind intercepting proxies
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL:  baseURL,
		username: cfg.Username,
		token:    cfg.Token,
		maxPages: maxPages,
		http:     &http.Client{Timeout: timeout, Transport: transport},
		logger:   logger,
	}
}

type releaseDTO struct {
	TagName string     `json:"tag_name"`
	Assets  []assetDTO `json:"assets"`
}

type assetDTO struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ListReleases returns the releases of owner/repo in the order the API returns them.
// Paginated responses are followed through the Link header. A listing that
// still has pages after the page cap is an error rather than a partial result.
func (c *Client) ListReleases(ctx context.Context, owner, repo string) ([]domain.Release, error) {
	next := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), perPage)

	var releases []domain.Release
	for page := 0; next != ""; page++ {
		if page == c.maxPages {
			c.logger.Warn("release listing exceeds page cap",
				zap.String("repository", owner+"/"+repo),
				zap.Int("pages", c.maxPages),
				zap.Int("listed", len(releases)),
			)
			return nil, fmt.Errorf("list releases of %s/%s: more than %d pages: %w",
				owner, repo, c.maxPages, domain.ErrUpstream)
		}
		var dtos []releaseDTO
		link, err := c.getJSON(ctx, "list_releases", next, &dtos)
		if err != nil {
			return nil, err
		}
		for _, d := range dtos {
			releases = append(releases, releaseFromDTO(d))
		}
		next = nextPage(link)
	}

	c.logger.Debug("listed releases",
		zap.String("repository", owner+"/"+repo),
		zap.Int("count", len(releases)),
	)
	return releases, nil
}

// LatestReleaseTag returns the tag GitHub marks as the latest release of owner/repo.
func (c *Client) LatestReleaseTag(ctx context.Context, owner, repo string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))

	var dto releaseDTO
	if _, err := c.getJSON(ctx, "latest_release", u, &dto); err != nil {
		return "", err
	}
	if dto.TagName == "" {
		return "", fmt.Errorf("latest release of %s/%s has no tag: %w", owner, repo, domain.ErrUpstream)
	}
	return dto.TagName, nil
}

// DownloadAsset streams the binary content of asset into w. Redirects to the
// storage backend are followed; the token is not forwarded to other hosts.
func (c *Client) DownloadAsset(ctx context.Context, asset domain.Asset, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("new request for asset %s: %v: %w", asset.Name, err, domain.ErrFetch)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observe("download_asset", "error", start)
		return 0, fmt.Errorf("download asset %s: %v: %w", asset.Name, err, domain.ErrFetch)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		observe("download_asset", strconv.Itoa(resp.StatusCode), start)
		return 0, fmt.Errorf("download asset %s: HTTP %d: %w", asset.Name, resp.StatusCode, domain.ErrFetch)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		observe("download_asset", "error", start)
		return n, fmt.Errorf("read asset %s: %v: %w", asset.Name, err, domain.ErrFetch)
	}
	observe("download_asset", strconv.Itoa(resp.StatusCode), start)
	return n, nil
}

// getJSON performs an authenticated API GET and decodes the body into v.
// Returns the Link header for pagination.
func (c *Client) getJSON(ctx context.Context, op, u string, v any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("new request %s: %v: %w", op, err, domain.ErrUpstream)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	if c.username != "" && c.token != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observe(op, "error", start)
		return "", fmt.Errorf("%s: %v: %w", op, err, domain.ErrUpstream)
	}
	defer func() { _ = resp.Body.Close() }()
	observe(op, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%s: could not retrieve %s (HTTP %d: %s): %w",
			op, redact(u), resp.StatusCode, strings.TrimSpace(string(body)), domain.ErrUpstream)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return "", fmt.Errorf("%s: decode response: %v: %w", op, err, domain.ErrUpstream)
	}
	return resp.Header.Get("Link"), nil
}

func releaseFromDTO(d releaseDTO) domain.Release {
	r := domain.Release{Tag: d.TagName}
	for _, a := range d.Assets {
		r.Assets = append(r.Assets, domain.Asset{Name: a.Name, URL: a.URL})
	}
	return r
}

// nextPage extracts the rel="next" target from a Link header.
func nextPage(link string) string {
	for _, part := range strings.Split(link, ",") {
		target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok || !strings.Contains(params, `rel="next"`) {
			continue
		}
		return strings.Trim(strings.TrimSpace(target), "<>")
	}
	return ""
}

// redact drops userinfo and query from a URL before it reaches logs or errors.
func redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<invalid url>"
	}
	parsed.User = nil
	parsed.RawQuery = ""
	return parsed.String()
}

func observe(op, status string, start time.Time) {
	metrics.UpstreamRequestsTotal.WithLabelValues(op, status).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
