package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream signals a non-success response from the release API.
	ErrUpstream = errors.New("upstream error")
	// ErrConfiguration signals a release or repository setup the pipeline cannot handle.
	ErrConfiguration = errors.New("configuration error")
	// ErrFetch signals a failed asset download or archive extraction.
	ErrFetch = errors.New("fetch error")
	// ErrIndex signals a filesystem failure while indexing a release.
	ErrIndex = errors.New("index error")

	// ErrNotFound is wrapped by every lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrVersionNotFound signals an unknown release version.
	ErrVersionNotFound = fmt.Errorf("version %w", ErrNotFound)
	// ErrResourceTypeNotFound signals a resource type absent from a version.
	ErrResourceTypeNotFound = fmt.Errorf("resource type %w", ErrNotFound)
	// ErrResourceNotFound signals an unknown canonical URL.
	ErrResourceNotFound = fmt.Errorf("resource %w", ErrNotFound)

	// ErrNotReady signals that the resource store has not been published yet.
	ErrNotReady = errors.New("resource store not ready")
)

// IndexError wraps ErrIndex with the release and file that failed.
type IndexError struct {
	Version string
	Path    string
	Err     error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: release %s: %s: %v", ErrIndex.Error(), e.Version, e.Path, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *IndexError) Unwrap() []error { return []error{ErrIndex, e.Err} }

// NewIndexError creates an index error for the given release and path.
func NewIndexError(version, path string, err error) error {
	return &IndexError{Version: version, Path: path, Err: err}
}
