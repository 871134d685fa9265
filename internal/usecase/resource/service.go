package resource

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"

	"github.com/codex-celida/guideline-interface/internal/domain"
)

// State is the readiness of the query service.
type State string

const (
	// StateStarting means the release pipeline has not finished yet.
	StateStarting State = "starting"
	// StateReady means a store is published and lookups are served.
	StateReady State = "ready"
	// StateFailed means the release pipeline aborted.
	StateFailed State = "failed"
)

// Service answers lookups against the published store.
type Service struct {
	store atomic.Pointer[storeHolder]

	mu    sync.Mutex
	state State
	cause error
}

type storeHolder struct{ Store }

// New creates a service in the starting state.
func New() *Service {
	return &Service{state: StateStarting}
}

// Publish makes st the served store and marks the service ready.
func (s *Service) Publish(st Store) {
	s.store.Store(&storeHolder{st})
	s.mu.Lock()
	s.state, s.cause = StateReady, nil
	s.mu.Unlock()
}

// Fail marks the service failed. A store published earlier keeps being served.
func (s *Service) Fail(err error) {
	s.mu.Lock()
	s.state, s.cause = StateFailed, err
	s.mu.Unlock()
}

// State returns the readiness state and, when failed, its cause.
func (s *Service) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.cause
}

// Ready reports whether lookups are served.
func (s *Service) Ready() bool {
	st, _ := s.State()
	return st == StateReady
}

// Versions returns every servable version: latest first, then tags in
// descending semantic version order, then tags that are not semantic versions.
func (s *Service) Versions() ([]string, error) {
	h := s.store.Load()
	if h == nil {
		return nil, domain.ErrNotReady
	}
	return SortVersions(h.Versions()), nil
}

// Get returns the document for resourceType and url in version; an empty
// version means latest.
func (s *Service) Get(version, resourceType, url string) (domain.Document, error) {
	h := s.store.Load()
	if h == nil {
		return domain.Document{}, domain.ErrNotReady
	}
	if version == "" {
		version = domain.LatestAlias
	}
	doc, err := h.Lookup(version, resourceType, url)
	if err != nil {
		return domain.Document{}, fmt.Errorf("get resource: %w", err)
	}
	return doc, nil
}

// SortVersions orders versions for the version history.
func SortVersions(versions []string) []string {
	type entry struct {
		tag string
		sv  *semver.Version
	}

	var latest bool
	entries := make([]entry, 0, len(versions))
	for _, v := range versions {
		if v == domain.LatestAlias {
			latest = true
			continue
		}
		sv, _ := semver.NewVersion(v) // nil for non-semver tags
		entries = append(entries, entry{tag: v, sv: sv})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.sv != nil && b.sv != nil:
			if c := a.sv.Compare(b.sv); c != 0 {
				return c > 0
			}
			return a.tag < b.tag
		case a.sv != nil:
			return true
		case b.sv != nil:
			return false
		default:
			return a.tag < b.tag
		}
	})

	out := make([]string, 0, len(versions))
	if latest {
		out = append(out, domain.LatestAlias)
	}
	for _, e := range entries {
		out = append(out, e.tag)
	}
	return out
}
