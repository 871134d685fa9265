package guideline

import "github.com/codex-celida/guideline-interface/internal/domain"

// Latest is the version that always points at the most recent release.
const Latest = domain.LatestAlias

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound             = domain.ErrNotFound
	ErrVersionNotFound      = domain.ErrVersionNotFound
	ErrResourceTypeNotFound = domain.ErrResourceTypeNotFound
	ErrResourceNotFound     = domain.ErrResourceNotFound
	ErrNotReady             = domain.ErrNotReady
	ErrUpstream             = domain.ErrUpstream
	ErrConfiguration        = domain.ErrConfiguration
	ErrFetch                = domain.ErrFetch
	ErrIndex                = domain.ErrIndex
)
