package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/streamfx/internal/api"
	"github.com/eugenenazirov/streamfx/internal/configuration"
)

func newRouter(t *testing.T, path string) http.Handler {
	t.Helper()

	logger := zaptest.NewLogger(t)
	if err := configuration.Initialize(path, configuration.WithLogger(logger)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	handler := api.NewHandler(configuration.MustInstance())
	return api.NewRouter(handler, logger, api.WithRateLimit(0, 0))
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIntegrationFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamfx", "config.yaml")
	t.Cleanup(func() { _ = configuration.Finalize() })
	jsonHeaders := map[string]string{"Content-Type": "application/json"}

	handler := newRouter(t, path)

	rec := performRequest(t, handler, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	var version struct {
		Different bool `json:"different"`
	}
	rec = performRequest(t, handler, http.MethodGet, "/api/version", nil, nil)
	if err := json.NewDecoder(rec.Body).Decode(&version); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if !version.Different {
		t.Fatalf("expected fresh settings to report a different version")
	}

	payload, _ := json.Marshal(map[string]any{"value": "nightly"})
	rec = performRequest(t, handler, http.MethodPut, "/api/settings/updater.channel", payload, jsonHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from setting update, got %d", rec.Code)
	}

	// Finalize persists, and a fresh Initialize reloads from disk.
	if err := configuration.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	handler = newRouter(t, path)

	rec = performRequest(t, handler, http.MethodGet, "/api/settings/updater.channel", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after reload, got %d", rec.Code)
	}
	var setting struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&setting); err != nil {
		t.Fatalf("decode setting: %v", err)
	}
	if setting.Value != "nightly" {
		t.Fatalf("expected persisted value nightly, got %q", setting.Value)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/version", nil, nil)
	if err := json.NewDecoder(rec.Body).Decode(&version); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if version.Different {
		t.Fatalf("expected persisted settings to carry the build version")
	}
}
