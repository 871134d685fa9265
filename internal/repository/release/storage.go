package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/domain"
)

const (
	// AliasRecordFile stores the latest tag when the filesystem refuses symlinks.
	AliasRecordFile = "latest.tag"
	// LockFile guards the root against concurrent fetches.
	LockFile = ".fetch.lock"
	// PendingFile marks a fetch that has started but not completed.
	PendingFile = ".fetch.pending"

	stagingPrefix = ".staging-"
)

// Storage is the on-disk layout of materialized releases:
//
//	<root>/<tag>/<asset>       downloaded archive
//	<root>/<tag>/package/**    extracted resources
//	<root>/latest              symlink to <root>/<latest tag>, or
//	<root>/latest.tag          alias record holding the latest tag
//	<root>/.staging-<tag>-*    release being downloaded
//	<root>/.fetch.lock         held for the duration of a fetch
//	<root>/.fetch.pending      present while a fetch is incomplete
type Storage struct {
	root    string
	logger  *zap.Logger
	symlink func(oldname, newname string) error
}

// New creates a Storage rooted at root. root is made absolute but not created.
func New(root string, logger *zap.Logger) (*Storage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{root: abs, logger: logger, symlink: os.Symlink}, nil
}

// Root returns the absolute storage root.
func (s *Storage) Root() string { return s.root }

// ReleaseDir returns the directory of a release tag.
func (s *Storage) ReleaseDir(tag string) string {
	return filepath.Join(s.root, tag)
}

// Ensure creates the storage root and its parents.
func (s *Storage) Ensure() error {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}
	return nil
}

// Check verifies that the storage root is a readable directory.
func (s *Storage) Check(_ context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat storage root: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.root)
	}
	return nil
}

// Lock takes the fetch lock of the root, polling every retry until ctx is
// done. The returned func releases it.
func (s *Storage) Lock(ctx context.Context, retry time.Duration) (func(), error) {
	lock := flock.New(filepath.Join(s.root, LockFile))
	locked, err := lock.TryLockContext(ctx, retry)
	if err != nil {
		return nil, fmt.Errorf("lock storage root %s: %w", s.root, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock storage root %s: held by another process", s.root)
	}
	return func() { _ = lock.Unlock() }, nil
}

// StageRelease creates an empty staging directory for tag. Nothing scans it
// until CommitRelease moves it into place.
func (s *Storage) StageRelease(tag string) (string, error) {
	if err := validTag(tag); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(s.root, stagingPrefix+tag+"-")
	if err != nil {
		return "", fmt.Errorf("create staging dir %s: %w", tag, err)
	}
	return dir, nil
}

// CommitRelease replaces the directory of tag with the staged one.
func (s *Storage) CommitRelease(tag, staged string) (string, error) {
	if err := validTag(tag); err != nil {
		return "", err
	}
	dir := s.ReleaseDir(tag)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear release dir %s: %w", tag, err)
	}
	if err := os.Rename(staged, dir); err != nil {
		return "", fmt.Errorf("commit release %s: %w", tag, err)
	}
	return dir, nil
}

// MarkPending records that a fetch into the root has started.
func (s *Storage) MarkPending() error {
	if err := os.WriteFile(filepath.Join(s.root, PendingFile), nil, 0o600); err != nil {
		return fmt.Errorf("write pending marker: %w", err)
	}
	return nil
}

// ClearPending records that the fetch completed.
func (s *Storage) ClearPending() error {
	err := os.Remove(filepath.Join(s.root, PendingFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pending marker: %w", err)
	}
	return nil
}

// Pending reports whether the last fetch into the root did not complete.
func (s *Storage) Pending() (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, PendingFile))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat pending marker: %w", err)
	}
}

// LinkLatest points the latest alias at tag and returns the path that serves it.
// A symlink is preferred; when it cannot be created an alias record is written
// and the tag directory itself is returned.
func (s *Storage) LinkLatest(tag string) (string, error) {
	if err := validTag(tag); err != nil {
		return "", err
	}
	target := s.ReleaseDir(tag)
	link := filepath.Join(s.root, domain.LatestAlias)

	if err := os.RemoveAll(link); err != nil {
		return "", fmt.Errorf("remove stale latest alias: %w", err)
	}
	if err := os.Remove(filepath.Join(s.root, AliasRecordFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale alias record: %w", err)
	}

	symErr := s.symlink(target, link)
	if symErr == nil {
		return link, nil
	}

	s.logger.Warn("symlink not supported, writing alias record",
		zap.String("tag", tag),
		zap.Error(symErr),
	)
	if err := os.WriteFile(filepath.Join(s.root, AliasRecordFile), []byte(tag+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write alias record: %w", err)
	}
	return target, nil
}

// Scan lists materialized releases: every immediate subdirectory of the root
// (symlinked directories included) except hidden ones, keyed by directory name. An alias record adds
// latest when no latest directory exists. A missing root yields an empty mapping.
func (s *Storage) Scan() (domain.ReleasePaths, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return domain.ReleasePaths{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list storage root: %w", err)
	}

	paths := make(domain.ReleasePaths, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(s.root, e.Name())
		switch {
		case e.IsDir():
			paths[e.Name()] = full
		case e.Type()&os.ModeSymlink != 0:
			fi, err := os.Stat(full)
			if err != nil {
				s.logger.Warn("skipping dangling release link", zap.String("path", full), zap.Error(err))
				continue
			}
			if fi.IsDir() {
				paths[e.Name()] = full
			}
		}
	}

	if _, ok := paths[domain.LatestAlias]; !ok {
		tag, err := s.readAliasRecord()
		if err != nil {
			return nil, err
		}
		if dir, ok := paths[tag]; ok && tag != "" {
			paths[domain.LatestAlias] = dir
		}
	}

	return paths, nil
}

// Clean removes every release, alias and record below the root, keeping the
// root itself and the lock file. Call it with the lock held.
func (s *Storage) Clean() error {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list storage root: %w", err)
	}
	for _, e := range entries {
		if e.Name() == LockFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *Storage) readAliasRecord() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, AliasRecordFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read alias record: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Scan is a shorthand for New(root).Scan() without logging.
func Scan(root string) (domain.ReleasePaths, error) {
	s, err := New(root, nil)
	if err != nil {
		return nil, err
	}
	return s.Scan()
}

// validTag rejects tags that would escape the storage root or shadow the alias.
func validTag(tag string) error {
	if tag == "" || tag == "." || tag == ".." || tag == domain.LatestAlias ||
		strings.ContainsAny(tag, `/\`) {
		return fmt.Errorf("invalid release tag %q: %w", tag, domain.ErrConfiguration)
	}
	return nil
}
