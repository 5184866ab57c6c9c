package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/drain"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	st := store.New()
	st.InsertBind(&store.Bind{Key: "b1", Address: "0.0.0.0:8080"})
	return &Handler{Store: st, Drain: drain.New(), LevelVar: new(slog.LevelVar), Version: "test"}, st
}

func TestConfigDumpIncludesInsertedBinds(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/config_dump", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var dump configDump
	if err := json.Unmarshal(rec.Body.Bytes(), &dump); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(dump.Binds) != 1 || dump.Binds[0].Key != "b1" {
		t.Fatalf("expected dump to contain bind b1, got %+v", dump.Binds)
	}
}

func TestConfigDumpPersistsWhenConfigured(t *testing.T) {
	h, _ := newTestHandler(t)
	var saved bool
	h.Persist = persistFunc(func(version string, payload []byte, dumpedAtUnix int64) error {
		saved = true
		if len(payload) == 0 {
			t.Error("expected non-empty payload")
		}
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/config_dump", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if !saved {
		t.Error("expected Persist to be called")
	}
}

type persistFunc func(version string, payload []byte, dumpedAtUnix int64) error

func (f persistFunc) SaveConfigDump(version string, payload []byte, dumpedAtUnix int64) error {
	return f(version, payload, dumpedAtUnix)
}

func TestQuitQuitQuitStartsDrain(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/quitquitquit", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	done := make(chan struct{})
	go func() {
		h.Drain.StartDrainAndWait(drain.ModeGraceful)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected drain to already be in progress after quitquitquit")
	}
}

func TestLoggingGetReflectsCurrentLevel(t *testing.T) {
	h, _ := newTestHandler(t)
	h.LevelVar.Set(slog.LevelWarn)

	req := httptest.NewRequest(http.MethodGet, "/logging", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["level"] != "WARN" {
		t.Errorf("level = %q, want WARN", body["level"])
	}
}

func TestLoggingPutChangesLevel(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/logging", strings.NewReader(`{"level":"debug"}`))
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if h.LevelVar.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", h.LevelVar.Level())
	}
}

func TestLoggingPutRejectsInvalidLevel(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/logging", strings.NewReader(`{"level":"loud"}`))
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIndexServesStatusLine(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sentinel-gate") {
		t.Errorf("expected index body to mention sentinel-gate, got %q", rec.Body.String())
	}
}
