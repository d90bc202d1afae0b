package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/letschat/chat-api/internal/handler"
	"github.com/letschat/chat-api/internal/infra/observability"
	"github.com/letschat/chat-api/internal/port"
	"github.com/letschat/chat-api/internal/service"

	"go.uber.org/zap"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func newOpsRouter(readiness *service.Readiness) http.Handler {
	logger := zap.NewNop()
	verifier := service.NewIdentityVerifier(nil, true, "dev-user", logger)
	return handler.NewRouter(nil, verifier, readiness, observability.NewMetrics(), []string{"*"}, logger)
}

func TestHealthz(t *testing.T) {
	router := newOpsRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := newOpsRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz_DependencyDown(t *testing.T) {
	readiness := service.NewReadiness(map[string]port.Pinger{
		"ollama": stubPinger{err: errors.New("connection refused")},
	}, time.Second, zap.NewNop())
	router := newOpsRouter(readiness)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "not ready" || !strings.Contains(body["error"], "ollama") {
		t.Errorf("unexpected body %v", body)
	}
}

func TestMetrics(t *testing.T) {
	router := newOpsRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestUsage(t *testing.T) {
	router := newOpsRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/usage", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if _, ok := body["totalTurns"]; !ok {
		t.Errorf("expected totalTurns in %v", body)
	}
}

func TestPing(t *testing.T) {
	router := newOpsRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	router := newOpsRouter(nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/api/nope"},
		{http.MethodGet, "/api/chat"},
		{http.MethodPut, "/api/chats"},
		{http.MethodPatch, "/api/chat/3f2b6f0e-8f6a-4c55-9b59-3c6a0d1c2e11"},
		{http.MethodPost, "/healthz"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", rec.Code)
			}
			var body map[string]string
			_ = json.NewDecoder(rec.Body).Decode(&body)
			if body["error"] != "Not found" {
				t.Errorf("unexpected body %v", body)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newOpsRouter(nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}
