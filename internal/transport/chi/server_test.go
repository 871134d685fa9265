package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/domain"
	"github.com/codex-celida/guideline-interface/internal/domain/store"
	healthuc "github.com/codex-celida/guideline-interface/internal/usecase/health"
	resourceuc "github.com/codex-celida/guideline-interface/internal/usecase/resource"
)

const pdURL = "https://www.netzwerk-universitaetsmedizin.de/fhir/codex-celida/guideline/covid19-inpatient-therapy/recommendation/no-therapeutic-anticoagulation"

func testStore() *store.Store {
	b := store.NewBuilder()
	b.Put("v1.0.1", domain.Document{
		ResourceType: "PlanDefinition",
		URL:          pdURL,
		Raw:          json.RawMessage(`{"resourceType":"PlanDefinition","url":"` + pdURL + `","version":"1.0.1"}`),
	})
	b.Put("v1.2.1-snapshot", domain.Document{
		ResourceType: "PlanDefinition",
		URL:          pdURL,
		Raw:          json.RawMessage(`{"resourceType":"PlanDefinition","url":"` + pdURL + `","version":"1.2.1"}`),
	})
	b.Alias(domain.LatestAlias, "v1.2.1-snapshot")
	return b.Build()
}

func newTestServer(t *testing.T, publish bool) (*resourceuc.Service, http.Handler) {
	t.Helper()
	resources := resourceuc.New()
	if publish {
		resources.Publish(testStore())
	}
	srv := NewServer(resources, healthuc.New(resources, nil), zap.NewNop())
	return resources, srv.Handler()
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func resourcePath(resourceType, canonical, version string) string {
	q := url.Values{}
	if canonical != "" {
		q.Set("url", canonical)
	}
	if version != "" {
		q.Set("version", version)
	}
	return "/fhir/" + resourceType + "?" + q.Encode()
}

func TestHealth_Ready(t *testing.T) {
	_, h := newTestServer(t, true)

	rr := do(t, h, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `"OK"`, rr.Body.String())
}

func TestHealth_NotReady(t *testing.T) {
	resources, h := newTestServer(t, false)

	rr := do(t, h, "/health")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "starting", body.Status)
	assert.Equal(t, "error", body.Checks["store"])

	resources.Fail(errors.New("fetch failed"))
	rr = do(t, h, "/health")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"failed"`)
}

func TestVersionHistory(t *testing.T) {
	_, h := newTestServer(t, true)

	rr := do(t, h, "/fhir/version-history")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `["latest","v1.2.1-snapshot","v1.0.1"]`, rr.Body.String())
}

func TestVersionHistory_NotReady(t *testing.T) {
	_, h := newTestServer(t, false)

	rr := do(t, h, "/fhir/version-history")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, ErrorCodeNotReady, decodeError(t, rr).Code)
}

func TestGetResource_DefaultsToLatest(t *testing.T) {
	_, h := newTestServer(t, true)

	rr := do(t, h, resourcePath("PlanDefinition", pdURL, ""))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"resourceType":"PlanDefinition","url":"`+pdURL+`","version":"1.2.1"}`, rr.Body.String())
}

func TestGetResource_ExplicitVersion(t *testing.T) {
	_, h := newTestServer(t, true)

	rr := do(t, h, resourcePath("PlanDefinition", pdURL, "v1.0.1"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"version":"1.0.1"`)

	latest := do(t, h, resourcePath("PlanDefinition", pdURL, "latest"))
	tagged := do(t, h, resourcePath("PlanDefinition", pdURL, "v1.2.1-snapshot"))
	assert.Equal(t, tagged.Body.String(), latest.Body.String())
}

func TestGetResource_ServesStoredBytes(t *testing.T) {
	_, h := newTestServer(t, true)

	rr := do(t, h, resourcePath("PlanDefinition", pdURL, "v1.0.1"))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"resourceType":"PlanDefinition","url":"`+pdURL+`","version":"1.0.1"}`, string(body))
}

func TestGetResource_NotFound(t *testing.T) {
	_, h := newTestServer(t, true)

	tests := []struct {
		name    string
		target  string
		code    ErrorCode
		message string
	}{
		{
			name:    "unknown version",
			target:  resourcePath("PlanDefinition", pdURL, "v9.9.9"),
			code:    ErrorCodeVersionNotFound,
			message: "Version v9.9.9 not found",
		},
		{
			name:    "unknown resource type",
			target:  resourcePath("Library", pdURL, ""),
			code:    ErrorCodeResourceTypeNotFound,
			message: "Resource Library not found",
		},
		{
			name:    "unknown url",
			target:  resourcePath("PlanDefinition", "https://example.org/none", ""),
			code:    ErrorCodeResourceNotFound,
			message: "Resource not found: https://example.org/none",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.target)
			assert.Equal(t, http.StatusNotFound, rr.Code)
			resp := decodeError(t, rr)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestGetResource_MissingURL(t *testing.T) {
	_, h := newTestServer(t, true)

	for _, target := range []string{"/fhir/PlanDefinition", "/fhir/PlanDefinition?url="} {
		rr := do(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
		assert.Equal(t, ErrorCodeBadRequest, decodeError(t, rr).Code, target)
	}
}

func TestGetResource_NotReady(t *testing.T) {
	_, h := newTestServer(t, false)

	rr := do(t, h, resourcePath("PlanDefinition", pdURL, ""))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, ErrorCodeNotReady, decodeError(t, rr).Code)
}

func TestRequestIDHeader(t *testing.T) {
	_, h := newTestServer(t, true)

	rr := do(t, h, "/fhir/version-history")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	_, h := newTestServer(t, true)

	rr := do(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, ErrorCodeNotFound, decodeError(t, rr).Code)

	req := httptest.NewRequest(http.MethodPost, "/fhir/version-history", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, true)

	rr := do(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestJSONRecoverer(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := do(t, h, "/")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, ErrorCodeInternalError, decodeError(t, rr).Code)
}
