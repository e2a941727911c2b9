package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type stubHealthChecker struct {
	err error
}

func (s stubHealthChecker) PingContext(context.Context) error { return s.err }

func TestPageHandler_Placeholder(t *testing.T) {
	h := NewPageHandler("")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	if !strings.Contains(w.Body.String(), `<div id="root">`) {
		t.Errorf("body = %q", w.Body.String())
	}
	if h.Assets() != nil {
		t.Error("Assets should be nil without a static dir")
	}
}

func TestPageHandler_ServesIndexAndAssets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewPageHandler(dir)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/creators", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "app") {
		t.Errorf("body = %q, want index.html", w.Body.String())
	}

	assets := h.Assets()
	if assets == nil {
		t.Fatal("Assets should not be nil")
	}
	req = httptest.NewRequest(http.MethodGet, "/assets/app.js", nil)
	w = httptest.NewRecorder()
	assets.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "console.log(1)" {
		t.Errorf("asset status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
	}{
		{"no checker", nil, http.StatusOK},
		{"healthy", stubHealthChecker{}, http.StatusOK},
		{"unhealthy", stubHealthChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			NewHealthHandler(tt.checker)(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
