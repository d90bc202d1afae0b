package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/letschat/chat-api/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestUsageSnapshot_Empty(t *testing.T) {
	m := observability.NewMetrics()

	snap := m.UsageSnapshot()
	if snap.TotalTurns != 0 || snap.ErrorRate != 0 || snap.AvgTokensPerTurn != 0 {
		t.Errorf("expected zero snapshot, got %+v", snap)
	}
	if snap.Period != "all_time" {
		t.Errorf("expected all_time, got %q", snap.Period)
	}
}

func TestUsageSnapshot_Counts(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrTurn("success")
	m.IncrTurn("success")
	m.IncrTurn("success")
	m.IncrTurn("error")
	m.RecordTokens(100, 50)
	m.RecordTokens(20, 10)

	snap := m.UsageSnapshot()
	if snap.TotalTurns != 4 {
		t.Errorf("expected 4 turns, got %d", snap.TotalTurns)
	}
	if snap.ErrorRate != 0.25 {
		t.Errorf("expected error rate 0.25, got %f", snap.ErrorRate)
	}
	if snap.PromptTokens != 120 || snap.CompletionTokens != 60 {
		t.Errorf("unexpected token totals %+v", snap)
	}
	if snap.AvgTokensPerTurn != 60 {
		t.Errorf("expected 60 tokens per successful turn, got %f", snap.AvgTokensPerTurn)
	}
}

func TestNewMetrics_Twice(t *testing.T) {
	// Private registries: constructing twice must not panic.
	observability.NewMetrics()
	observability.NewMetrics()
}

func TestZapLoggerMiddleware_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	r := chi.NewRouter()
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/bad", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) })
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	want := []string{"info", "warn", "error"}
	for i, e := range entries {
		if e.Level.String() != want[i] {
			t.Errorf("entry %d: expected level %s, got %s", i, want[i], e.Level)
		}
	}
}

func TestZapLoggerMiddleware_ProbesAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	r := chi.NewRouter()
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zap.DebugLevel {
		t.Fatalf("expected one debug entry, got %v", entries)
	}
}
