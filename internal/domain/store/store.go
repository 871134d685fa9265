// Package store holds the immutable in-memory index of guideline resources:
// version -> resource type -> canonical URL -> document.
package store

import (
	"fmt"
	"sort"

	"github.com/codex-celida/guideline-interface/internal/domain"
)

type typeIndex map[string]map[string]domain.Document // resourceType -> url -> doc

// Store is a read-only resource index. Safe for concurrent readers.
type Store struct {
	versions map[string]typeIndex
	aliases  map[string]string // alias -> version key in versions
}

// Versions returns every servable version, aliases included, in sorted order.
func (s *Store) Versions() []string {
	out := make([]string, 0, len(s.versions)+len(s.aliases))
	for v := range s.versions {
		out = append(out, v)
	}
	for a := range s.aliases {
		if _, ok := s.versions[a]; !ok {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

// HasVersion reports whether the version (or alias) is known.
func (s *Store) HasVersion(version string) bool {
	_, ok := s.resolve(version)
	return ok
}

// Lookup returns the document stored under version, resource type and canonical URL.
// Misses wrap ErrVersionNotFound, ErrResourceTypeNotFound or ErrResourceNotFound.
func (s *Store) Lookup(version, resourceType, url string) (domain.Document, error) {
	idx, ok := s.resolve(version)
	if !ok {
		return domain.Document{}, fmt.Errorf("%s: %w", version, domain.ErrVersionNotFound)
	}
	byURL, ok := idx[resourceType]
	if !ok {
		return domain.Document{}, fmt.Errorf("%s: %w", resourceType, domain.ErrResourceTypeNotFound)
	}
	doc, ok := byURL[url]
	if !ok {
		return domain.Document{}, fmt.Errorf("%s: %w", url, domain.ErrResourceNotFound)
	}
	return doc, nil
}

// Types returns resource types with their document counts for a version.
func (s *Store) Types(version string) map[string]int {
	idx, ok := s.resolve(version)
	if !ok {
		return nil
	}
	return countTypes(idx)
}

func countTypes(idx typeIndex) map[string]int {
	out := make(map[string]int, len(idx))
	for rt, byURL := range idx {
		out[rt] = len(byURL)
	}
	return out
}

// Count returns the number of documents in a version.
func (s *Store) Count(version string) int {
	n := 0
	for _, c := range s.Types(version) {
		n += c
	}
	return n
}

func (s *Store) resolve(version string) (typeIndex, bool) {
	if idx, ok := s.versions[version]; ok {
		return idx, true
	}
	if target, ok := s.aliases[version]; ok {
		idx, ok := s.versions[target]
		return idx, ok
	}
	return nil, false
}

// Builder accumulates documents before producing an immutable Store.
// Not safe for concurrent use.
type Builder struct {
	versions map[string]typeIndex
	aliases  map[string]string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		versions: make(map[string]typeIndex),
		aliases:  make(map[string]string),
	}
}

// AddVersion registers a version even if no document is ever put into it.
func (b *Builder) AddVersion(version string) {
	if _, ok := b.versions[version]; !ok {
		b.versions[version] = make(typeIndex)
	}
}

// DropVersion removes a version and every alias pointing at it.
func (b *Builder) DropVersion(version string) {
	delete(b.versions, version)
	for a, target := range b.aliases {
		if target == version {
			delete(b.aliases, a)
		}
	}
}

// Put stores doc under version; an existing document with the same type and URL is replaced.
func (b *Builder) Put(version string, doc domain.Document) (replaced bool) {
	b.AddVersion(version)
	idx := b.versions[version]
	byURL, ok := idx[doc.ResourceType]
	if !ok {
		byURL = make(map[string]domain.Document)
		idx[doc.ResourceType] = byURL
	}
	_, replaced = byURL[doc.URL]
	byURL[doc.URL] = doc
	return replaced
}

// Types returns resource types with their document counts for a version being built.
func (b *Builder) Types(version string) map[string]int {
	return countTypes(b.versions[version])
}

// Alias makes alias resolve to target at lookup time.
func (b *Builder) Alias(alias, target string) {
	b.aliases[alias] = target
}

// Build freezes the builder. The builder must not be used afterwards.
func (b *Builder) Build() *Store {
	s := &Store{versions: b.versions, aliases: b.aliases}
	b.versions, b.aliases = nil, nil
	return s
}
