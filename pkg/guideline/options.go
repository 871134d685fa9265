package guideline

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	repositoryURL   string
	includeVersions []string
	storagePath     string

	apiBaseURL  string
	username    string
	token       string
	timeout     time.Duration
	concurrency int
	insecure    bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithRepository sets the GitHub repository whose releases are served,
// e.g. https://github.com/acme/guidelines. Required.
func WithRepository(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.repositoryURL = url
	})
}

// WithIncludeVersions restricts downloads to the given release tags.
// The latest release is always included. Default: all releases.
func WithIncludeVersions(tags ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.includeVersions = append(c.includeVersions, tags...)
	})
}

// WithStorage keeps extracted releases under path so that later clients
// reuse them instead of downloading again. By default the client works in
// a temporary directory removed by Close.
func WithStorage(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.storagePath = path
	})
}

// WithAPIBaseURL overrides the GitHub API endpoint, for GitHub Enterprise
// or tests. Default: https://api.github.com.
func WithAPIBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiBaseURL = url
	})
}

// WithCredentials authenticates release API requests.
func WithCredentials(username, token string) Option {
	return optionFunc(func(c *clientConfig) {
		c.username = username
		c.token = token
	})
}

// WithInsecureSkipVerify disables TLS certificate verification of the
// release API, for upstreams behind intercepting proxies.
func WithInsecureSkipVerify() Option {
	return optionFunc(func(c *clientConfig) {
		c.insecure = true
	})
}

// WithTimeout bounds every upstream request. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithConcurrency sets how many releases are downloaded in parallel.
// Default: 1.
func WithConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.concurrency = n
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
