package resource

import "github.com/codex-celida/guideline-interface/internal/domain"

// Store is the read side of an indexed resource store.
type Store interface {
	Versions() []string
	Lookup(version, resourceType, url string) (domain.Document, error)
}
