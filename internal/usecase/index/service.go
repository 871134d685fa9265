package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/domain"
	"github.com/codex-celida/guideline-interface/internal/domain/store"
	"github.com/codex-celida/guideline-interface/internal/fhir"
	"github.com/codex-celida/guideline-interface/internal/metrics"
)

// Skip reasons reported in guideline_documents_skipped_total.
const (
	SkipInvalidJSON    = "invalid_json"
	SkipNoResourceType = "no_resource_type"
	SkipExcluded       = "excluded"
	SkipMissingURL     = "missing_url"
	SkipMalformed      = "malformed"
	SkipUnknownType    = "unknown_type"
)

// Service builds the resource store from materialized releases.
type Service struct {
	logger *zap.Logger
}

// New creates an indexer.
func New(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// release is one directory to index, with every version name that resolves to it.
type release struct {
	name    string
	dir     string
	aliases []string
}

// Build indexes every release in paths. Versions that resolve to the same
// directory are indexed once and served through aliases. A release that fails
// to read is left out of the store; its *domain.IndexError is joined into the
// returned error while the other releases are still served.
func (s *Service) Build(ctx context.Context, paths domain.ReleasePaths) (*store.Store, error) {
	start := time.Now()
	releases, errs := groupReleases(paths)

	b := store.NewBuilder()
	for _, r := range releases {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}

		b.AddVersion(r.name)
		if err := s.indexRelease(ctx, b, r); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("build index: %w", ctxErr)
			}
			s.logger.Error("release not indexed", zap.String("version", r.name), zap.Error(err))
			b.DropVersion(r.name)
			errs = append(errs, err)
			continue
		}
		for _, a := range r.aliases {
			b.Alias(a, r.name)
		}
	}

	st := b.Build()
	for _, r := range releases {
		if !st.HasVersion(r.name) {
			continue
		}
		n := float64(st.Count(r.name))
		metrics.DocumentsIndexed.WithLabelValues(r.name).Set(n)
		for _, a := range r.aliases {
			metrics.DocumentsIndexed.WithLabelValues(a).Set(n)
		}
	}

	s.logger.Info("index built",
		zap.Strings("versions", st.Versions()),
		zap.Int("failed", len(errs)),
		zap.Duration("took", time.Since(start)),
	)
	return st, errors.Join(errs...)
}

func (s *Service) indexRelease(ctx context.Context, b *store.Builder, r release) error {
	log := s.logger.With(zap.String("version", r.name))
	pkg := filepath.Join(r.dir, domain.PackageDir)

	if _, err := os.Stat(pkg); errors.Is(err, fs.ErrNotExist) {
		log.Info("no resources loaded", zap.String("path", r.dir))
		return nil
	} else if err != nil {
		return domain.NewIndexError(r.name, pkg, err)
	}

	walkErr := filepath.WalkDir(pkg, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return domain.NewIndexError(r.name, path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return domain.NewIndexError(r.name, path, err)
		}
		rel, _ := filepath.Rel(r.dir, path)
		s.indexFile(log, b, r.name, rel, data)
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	s.summarize(log, b, r)
	return nil
}

func (s *Service) indexFile(log *zap.Logger, b *store.Builder, version, file string, data []byte) {
	if !json.Valid(data) {
		skipped(SkipInvalidJSON)
		log.Warn("skipping file: invalid JSON", zap.String("file", file))
		return
	}

	resourceType, ok := fhir.ResourceType(data)
	if !ok {
		skipped(SkipNoResourceType)
		return
	}
	if domain.IsExcluded(resourceType) {
		skipped(SkipExcluded)
		return
	}

	url, err := fhir.CanonicalURL(resourceType, data)
	if errors.Is(err, fhir.ErrMissingURL) {
		skipped(SkipMissingURL)
		log.Warn("skipping resource: no url element provided",
			zap.String("file", file),
			zap.String("resource_type", resourceType),
		)
		return
	}
	if errors.Is(err, fhir.ErrUnknownType) {
		skipped(SkipUnknownType)
		log.Warn("skipping resource: unknown resource type",
			zap.String("file", file),
			zap.String("resource_type", resourceType),
		)
		return
	}
	if err != nil {
		skipped(SkipMalformed)
		log.Warn("skipping resource: cannot decode",
			zap.String("file", file),
			zap.String("resource_type", resourceType),
			zap.Error(err),
		)
		return
	}

	doc := domain.Document{ResourceType: resourceType, URL: url, Raw: json.RawMessage(data)}
	if b.Put(version, doc) {
		log.Warn("resource already loaded, overwriting",
			zap.String("file", file),
			zap.String("resource_type", resourceType),
			zap.String("url", url),
		)
	}
}

func (s *Service) summarize(log *zap.Logger, b *store.Builder, r release) {
	types := b.Types(r.name)
	if len(types) == 0 {
		log.Info("no resources loaded", zap.String("path", r.dir))
		return
	}

	names := make([]string, 0, len(types))
	total := 0
	for rt, n := range types {
		names = append(names, rt)
		total += n
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, rt := range names {
		parts[i] = fmt.Sprintf("%s (%d)", rt, types[rt])
	}

	log.Info("loaded resources",
		zap.Int("resources", total),
		zap.Int("types", len(types)),
		zap.String("path", r.dir),
		zap.Strings("aliases", r.aliases),
	)
	log.Info("loaded types", zap.String("types", strings.Join(parts, ", ")))
}

// groupReleases resolves every path and merges versions sharing a real
// directory. The first non-alias name in sorted order owns the release.
func groupReleases(paths domain.ReleasePaths) ([]release, []error) {
	var errs []error
	byDir := make(map[string]*release)
	var order []string

	for _, v := range paths.Versions() {
		resolved, err := filepath.EvalSymlinks(paths[v])
		if err != nil {
			errs = append(errs, domain.NewIndexError(v, paths[v], err))
			continue
		}
		r, ok := byDir[resolved]
		if !ok {
			r = &release{dir: resolved}
			byDir[resolved] = r
			order = append(order, resolved)
		}
		r.aliases = append(r.aliases, v)
	}

	out := make([]release, 0, len(order))
	for _, dir := range order {
		r := byDir[dir]
		names := r.aliases
		owner := 0
		for i, n := range names {
			if n != domain.LatestAlias {
				owner = i
				break
			}
		}
		r.name = names[owner]
		r.aliases = append(append([]string(nil), names[:owner]...), names[owner+1:]...)
		if len(r.aliases) == 0 {
			r.aliases = nil
		}
		out = append(out, *r)
	}
	return out, errs
}

func skipped(reason string) {
	metrics.DocumentsSkippedTotal.WithLabelValues(reason).Inc()
}
