package health

import (
	"context"

	"github.com/codex-celida/guideline-interface/internal/usecase/resource"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates lookups are served but a supporting component fails.
	Degraded Status = "degraded"
	// Unhealthy indicates lookups cannot be served.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Store  resource.State
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store   StoreState
	storage StorageChecker
}

// New creates a Service. storage can be nil.
func New(store StoreState, storage StorageChecker) *Service {
	return &Service{store: store, storage: storage}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	state, _ := s.store.State()
	if state == resource.StateReady {
		checks["store"] = CheckOK
	} else {
		checks["store"] = CheckError
	}

	if s.storage != nil {
		if err := s.storage.Check(ctx); err != nil {
			checks["storage"] = CheckError
		} else {
			checks["storage"] = CheckOK
		}
	}

	status := Healthy
	switch {
	case checks["store"] == CheckError:
		status = Unhealthy
	case checks["storage"] == CheckError:
		status = Degraded
	}

	return Report{Status: status, Store: state, Checks: checks}
}
