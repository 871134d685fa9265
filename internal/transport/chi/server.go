package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/domain"
	logpkg "github.com/codex-celida/guideline-interface/internal/logger"
	"github.com/codex-celida/guideline-interface/internal/metrics"
	healthuc "github.com/codex-celida/guideline-interface/internal/usecase/health"
	resourceuc "github.com/codex-celida/guideline-interface/internal/usecase/resource"
)

// lookup identifies the resource a request asked for.
type lookup struct {
	version      string
	resourceType string
	url          string
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, q lookup) bool

// Server serves the read-only guideline resource API.
type Server struct {
	resources     *resourceuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(resources *resourceuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		resources: resources,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrVersionNotFound, http.StatusNotFound, ErrorCodeVersionNotFound,
			func(q lookup) string { return fmt.Sprintf("Version %s not found", q.version) }),
		sentinelHandler(domain.ErrResourceTypeNotFound, http.StatusNotFound, ErrorCodeResourceTypeNotFound,
			func(q lookup) string { return fmt.Sprintf("Resource %s not found", q.resourceType) }),
		sentinelHandler(domain.ErrResourceNotFound, http.StatusNotFound, ErrorCodeResourceNotFound,
			func(q lookup) string { return fmt.Sprintf("Resource not found: %s", q.url) }),
		sentinelHandler(domain.ErrNotReady, http.StatusServiceUnavailable, ErrorCodeNotReady,
			func(lookup) string { return "Resources not initialized" }),
	}
	return s
}

// Handler returns the router with all routes and middleware mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/fhir/version-history", s.VersionHistory)
	r.Get("/fhir/{resourceType}", s.GetResource)
	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	if report.Status != healthuc.Unhealthy {
		writeJSON(w, http.StatusOK, "OK")
		return
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	writeJSON(w, http.StatusInternalServerError, HealthResponse{
		Status: string(report.Store),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// VersionHistory handles GET /fhir/version-history.
func (s *Server) VersionHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := s.resources.Versions()
	if err != nil {
		s.handleDomainError(w, r, err, lookup{})
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// GetResource handles GET /fhir/{resourceType}.
func (s *Server) GetResource(w http.ResponseWriter, r *http.Request) {
	var resourceType string
	err := runtime.BindStyledParameterWithOptions("simple", "resourceType", chi.URLParam(r, "resourceType"),
		&resourceType, runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter resourceType: "+err.Error())
		return
	}

	var params GetResourceParams
	if err := runtime.BindQueryParameter("form", true, true, "url", r.URL.Query(), &params.URL); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter url: "+err.Error())
		return
	}
	if params.URL == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Query argument url is required, but not found")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "version", r.URL.Query(), &params.Version); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter version: "+err.Error())
		return
	}

	q := lookup{version: domain.LatestAlias, resourceType: resourceType, url: params.URL}
	if params.Version != nil && *params.Version != "" {
		q.version = *params.Version
	}

	r = r.WithContext(logpkg.WithFields(r.Context(),
		zap.String("resource_type", q.resourceType),
		zap.String("version", q.version),
		zap.String("url", q.url),
	))

	doc, err := s.resources.Get(q.version, q.resourceType, q.url)
	if err != nil {
		s.handleDomainError(w, r, err, q)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode, message func(lookup) string) errorHandler {
	return func(w http.ResponseWriter, err error, q lookup) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, message(q))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error, q lookup) {
	log := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err, q) {
			log.Debug("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
