// Package admin serves the gateway's administrative HTTP surface: a live
// dump of the routing configuration, a log-level control, a graceful
// shutdown trigger and a status index, all over plain net/http handlers
// registered on a ServeMux the way the rest of this gateway wires its HTTP
// surfaces.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/drain"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// configDump is the JSON shape returned by /config_dump: a point-in-time
// snapshot of every bind (with its nested listeners/routes) and every shared
// backend the store currently holds. handleConfigDump does not fill
// Policies, so no policy is ever listed in the dump.
type configDump struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Binds       []*store.Bind    `json:"binds"`
	Backends    []*store.Backend `json:"backends"`
	Policies    []*store.Policy  `json:"policies"`
}

// ConfigDumpPersister saves a rendered config dump for later retrieval
// (e.g. across a restart); nil disables persistence and /config_dump still
// serves the live snapshot.
type ConfigDumpPersister interface {
	SaveConfigDump(version string, payload []byte, dumpedAtUnix int64) error
}

// Handler serves /config_dump, /quitquitquit, /logging and /.
type Handler struct {
	Store    *store.Store
	Drain    *drain.Drain
	LevelVar *slog.LevelVar
	Persist  ConfigDumpPersister
	Logger   *slog.Logger
	Version  string

	// APIKeyHash is an argon2id hash of the admin API key clients must
	// present in X-Admin-Api-Key on every route except the plain status
	// index. Empty disables the check.
	APIKeyHash string
}

func (h *Handler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Mux builds the admin ServeMux. Every route is GET-only except
// /quitquitquit (POST, mirroring the convention that a drain trigger should
// not be reachable by an idle GET/prefetch) and the logging level setter
// (PUT).
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /config_dump", h.requireAPIKey(h.handleConfigDump))
	mux.HandleFunc("POST /quitquitquit", h.requireAPIKey(h.handleQuitQuitQuit))
	mux.HandleFunc("GET /logging", h.requireAPIKey(h.handleGetLogging))
	mux.HandleFunc("PUT /logging", h.requireAPIKey(h.handleSetLogging))
	mux.HandleFunc("GET /", h.handleIndex)
	return mux
}

func (h *Handler) handleConfigDump(w http.ResponseWriter, r *http.Request) {
	dump := configDump{GeneratedAt: time.Now()}
	for _, b := range h.Store.All() {
		dump.Binds = append(dump.Binds, b)
	}
	for _, name := range h.Store.BackendNames() {
		if b, ok := h.Store.Backend(name); ok {
			dump.Backends = append(dump.Backends, b)
		}
	}

	payload, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.Persist != nil {
		version := dump.GeneratedAt.UTC().Format(time.RFC3339Nano)
		if err := h.Persist.SaveConfigDump(version, payload, dump.GeneratedAt.Unix()); err != nil {
			h.log().Warn("admin: config dump persist failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// handleQuitQuitQuit starts a graceful drain of every bind and returns
// immediately; it does not wait for the drain to complete, matching the
// fire-and-forget contract an orchestrator's preStop hook expects.
func (h *Handler) handleQuitQuitQuit(w http.ResponseWriter, r *http.Request) {
	h.log().Info("admin: quitquitquit received, starting graceful drain")
	h.Drain.StartDrain(drain.ModeGraceful)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("draining\n"))
}

func (h *Handler) handleGetLogging(w http.ResponseWriter, r *http.Request) {
	level := slog.LevelInfo
	if h.LevelVar != nil {
		level = h.LevelVar.Level()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"level": level.String()})
}

// handleSetLogging accepts {"level": "debug"|"info"|"warn"|"error"} and
// applies it immediately to the process-wide level var, the same "live
// knob, no restart" contract the config dump and drain endpoints offer.
func (h *Handler) handleSetLogging(w http.ResponseWriter, r *http.Request) {
	if h.LevelVar == nil {
		http.Error(w, "logging level is not adjustable on this instance", http.StatusNotImplemented)
		return
	}

	var body struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(body.Level)); err != nil {
		http.Error(w, "invalid level: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.LevelVar.Set(level)
	h.log().Info("admin: log level changed", "level", level.String())
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("sentinel-gate " + h.Version + "\nendpoints: /config_dump /quitquitquit /logging\n"))
}
