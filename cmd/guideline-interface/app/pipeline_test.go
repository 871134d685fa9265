package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/archive/archivetest"
	"github.com/codex-celida/guideline-interface/internal/config"
	"github.com/codex-celida/guideline-interface/internal/domain"
	"github.com/codex-celida/guideline-interface/internal/version"
)

const libURL = "https://example.org/Library/recommendation"

func testConfig(t *testing.T, apiURL string, fetchOnStart bool) config.Config {
	t.Helper()
	cfg := config.Config{
		Repository: config.RepositoryConfig{
			URL:          "https://github.com/o/r",
			APIBaseURL:   apiURL,
			FetchOnStart: fetchOnStart,
		},
		Storage: config.StorageConfig{Path: t.TempDir()},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

// fakeReleaseAPI serves two releases of o/r, v2 being the latest.
func fakeReleaseAPI(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	return brokenReleaseAPI(t, &atomic.Bool{})
}

// brokenReleaseAPI is fakeReleaseAPI whose v2 asset answers 500 while broken is set.
func brokenReleaseAPI(t *testing.T, broken *atomic.Bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/releases", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `[
			{"tag_name":"v2","assets":[{"name":"package.tgz","url":"%[1]s/assets/v2"}]},
			{"tag_name":"v1","assets":[{"name":"package.tgz","url":"%[1]s/assets/v1"}]}
		]`, server.URL)
	})
	mux.HandleFunc("/repos/o/r/releases/latest", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"tag_name": "v2"})
	})
	for _, tag := range []string{"v1", "v2"} {
		payload := archivetest.TarGz(t, map[string]string{
			"package/Library-recommendation.json": `{"resourceType":"Library","url":"` + libURL + `","version":"` + tag + `"}`,
			"package/ImplementationGuide-x.json":  `{"resourceType":"ImplementationGuide","url":"https://example.org/ig"}`,
		})
		mux.HandleFunc("/assets/"+tag, func(w http.ResponseWriter, _ *http.Request) {
			if tag == "v2" && broken.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write(payload)
		})
	}
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, calls
}

func TestPipeline_FetchOnStart(t *testing.T) {
	server, calls := fakeReleaseAPI(t)
	p, err := newPipeline(testConfig(t, server.URL, true), zap.NewNop())
	require.NoError(t, err)

	st, err := p.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"latest", "v1", "v2"}, st.Versions())

	doc, err := st.Lookup("latest", "Library", libURL)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Raw), `"version":"v2"`)

	_, err = st.Lookup("v1", "ImplementationGuide", "https://example.org/ig")
	assert.Error(t, err)
}

func TestPipeline_ReusesMaterializedReleases(t *testing.T) {
	server, calls := fakeReleaseAPI(t)
	cfg := testConfig(t, server.URL, true)

	first, err := newPipeline(cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = first.run(context.Background())
	require.NoError(t, err)

	second, err := newPipeline(cfg, zap.NewNop())
	require.NoError(t, err)
	st, err := second.run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "second run must not hit the release API")
	assert.Equal(t, []string{"latest", "v1", "v2"}, st.Versions())
}

func TestPipeline_EmptyStorageWithoutFetch(t *testing.T) {
	p, err := newPipeline(testConfig(t, "http://127.0.0.1:1", false), zap.NewNop())
	require.NoError(t, err)

	st, err := p.run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Versions())
}

func TestPipeline_FetchCleansStorageRoot(t *testing.T) {
	server, _ := fakeReleaseAPI(t)
	cfg := testConfig(t, server.URL, true)
	stale := filepath.Join(cfg.Storage.Path, "v0")
	require.NoError(t, os.MkdirAll(stale, 0o750))

	p, err := newPipeline(cfg, zap.NewNop())
	require.NoError(t, err)
	paths, err := p.fetch(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, paths, "v0")
	assert.NoDirExists(t, stale)
}

func TestPipeline_UpstreamFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	p, err := newPipeline(testConfig(t, server.URL, true), zap.NewNop())
	require.NoError(t, err)

	st, err := p.run(context.Background())
	assert.Error(t, err)
	assert.Nil(t, st)
}

func TestPipeline_RestartAfterFailedDownload(t *testing.T) {
	broken := &atomic.Bool{}
	broken.Store(true)
	server, calls := brokenReleaseAPI(t, broken)
	cfg := testConfig(t, server.URL, true)

	first, err := newPipeline(cfg, zap.NewNop())
	require.NoError(t, err)
	st, err := first.run(context.Background())
	require.ErrorIs(t, err, domain.ErrFetch)
	assert.Nil(t, st)

	broken.Store(false)
	second, err := newPipeline(cfg, zap.NewNop())
	require.NoError(t, err)
	st, err = second.run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(), "interrupted fetch is not reused")
	assert.Equal(t, []string{"latest", "v1", "v2"}, st.Versions())
	doc, err := st.Lookup("latest", "Library", libURL)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Raw), `"version":"v2"`)
}

func TestPipeline_InterruptedFetchWithoutFetchOnStart(t *testing.T) {
	broken := &atomic.Bool{}
	broken.Store(true)
	server, _ := brokenReleaseAPI(t, broken)
	cfg := testConfig(t, server.URL, true)

	p, err := newPipeline(cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = p.run(context.Background())
	require.Error(t, err)

	cfg.Repository.FetchOnStart = false
	p, err = newPipeline(cfg, zap.NewNop())
	require.NoError(t, err)
	st, err := p.run(context.Background())
	require.ErrorIs(t, err, domain.ErrFetch)
	assert.Nil(t, st)
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.String(), strings.TrimSpace(out.String()))
}

func TestServeCommand_UnknownEnv(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"serve", "--env", "does-not-exist"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
