package health

import (
	"context"

	"github.com/codex-celida/guideline-interface/internal/usecase/resource"
)

// StoreState reports the readiness of the resource store.
type StoreState interface {
	State() (resource.State, error)
}

// StorageChecker checks that the release storage root is accessible.
type StorageChecker interface {
	Check(ctx context.Context) error
}
