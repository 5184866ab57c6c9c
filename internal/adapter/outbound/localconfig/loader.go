package localconfig

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// Loader reads a local config file and resyncs it into a routing Store in
// one pass: every bind/listener/route/backend/policy in the file is
// inserted or replaced, and anything previously loaded from this file but
// now absent is removed -- the same end state the store's copy-on-write updates reach one
// resource at a time over xDS, just read from a single document instead of
// a resource stream. The document is still applied resource by resource, so
// an insert that fails part-way leaves the resources before it applied.
type Loader struct {
	Path  string
	Store *store.Store

	logger *slog.Logger

	// seenBinds/Backends/Policies track what the last successful Load
	// inserted, so the next Load can remove what dropped out of the file.
	seenBinds    map[string]struct{}
	seenBackends map[string]struct{}
	seenPolicies map[string]struct{}
}

// NewLoader builds a Loader for the given file path and store.
func NewLoader(path string, st *store.Store) *Loader {
	return &Loader{Path: path, Store: st}
}

// Logger sets the loader's logger; nil falls back to slog.Default().
func (l *Loader) Logger(logger *slog.Logger) *Loader {
	l.logger = logger
	return l
}

func (l *Loader) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

// Load reads and parses the file (YAML or JSON -- JSON parses cleanly as
// YAML, so no extension sniffing is needed) and resyncs it into the store.
func (l *Loader) Load() error {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return fmt.Errorf("localconfig: read %s: %w", l.Path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("localconfig: parse %s: %w", l.Path, err)
	}

	nextBinds := make(map[string]struct{}, len(file.Binds))
	for _, bd := range file.Binds {
		bind, listeners := toBind(bd)
		l.Store.InsertBind(bind)
		for _, listener := range listeners {
			if err := l.Store.InsertListener(bind.Key, listener); err != nil {
				return fmt.Errorf("localconfig: bind %q: %w", bind.Key, err)
			}
		}
		nextBinds[bind.Key] = struct{}{}
	}
	for key := range l.seenBinds {
		if _, ok := nextBinds[key]; !ok {
			l.Store.RemoveBind(key)
		}
	}
	l.seenBinds = nextBinds

	nextBackends := make(map[string]struct{}, len(file.Backends))
	for _, bd := range file.Backends {
		backend, err := toBackend(bd)
		if err != nil {
			return fmt.Errorf("localconfig: backend %q: %w", bd.Key, err)
		}
		if err := l.Store.InsertBackend(backend); err != nil {
			return fmt.Errorf("localconfig: backend %q: %w", bd.Key, err)
		}
		nextBackends[backend.Name] = struct{}{}
	}
	for _, name := range l.Store.BackendNames() {
		if _, ok := nextBackends[name]; !ok {
			if l.seenBackends != nil {
				if _, wasOurs := l.seenBackends[name]; wasOurs {
					l.Store.RemoveBackend(name)
				}
			}
		}
	}
	l.seenBackends = nextBackends

	nextPolicies := make(map[string]struct{}, len(file.Policies))
	for _, pd := range file.Policies {
		policy, err := toPolicy(pd)
		if err != nil {
			return fmt.Errorf("localconfig: policy %q: %w", pd.Name, err)
		}
		l.Store.InsertPolicy(policy)
		nextPolicies[policy.Name] = struct{}{}
	}
	for name := range l.seenPolicies {
		if _, ok := nextPolicies[name]; !ok {
			l.Store.RemovePolicy(name)
		}
	}
	l.seenPolicies = nextPolicies

	l.log().Info("localconfig: loaded", "path", l.Path,
		"binds", len(file.Binds), "backends", len(file.Backends), "policies", len(file.Policies))
	return nil
}
