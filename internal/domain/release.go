package domain

import (
	"fmt"
	"sort"
)

// LatestAlias is the pseudo-version that points at the most recent release.
const LatestAlias = "latest"

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name string
	URL  string
}

// Release is a tagged, published version of the guideline repository.
type Release struct {
	Tag    string
	Assets []Asset
}

// Asset returns the single downloadable asset of the release.
// Releases are published with exactly one archive; anything else is a configuration error.
func (r Release) Asset() (Asset, error) {
	if len(r.Assets) != 1 {
		return Asset{}, fmt.Errorf("release %s has %d assets, expected exactly one: %w",
			r.Tag, len(r.Assets), ErrConfiguration)
	}
	return r.Assets[0], nil
}

// ReleasePaths maps a release tag (or LatestAlias) to its extracted directory.
type ReleasePaths map[string]string

// Versions returns the keys in sorted order.
func (p ReleasePaths) Versions() []string {
	out := make([]string, 0, len(p))
	for v := range p {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
