package xds

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// Handler applies decoded config/discovery resources to the routing and
// discovery stores, one resource at a time, so a single malformed resource
// in a snapshot nacks without blocking the rest of the update.
type Handler struct {
	Store     *store.Store
	Discovery *discovery.Store

	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler builds a Handler over the given stores.
func NewHandler(st *store.Store, disco *discovery.Store) *Handler {
	return &Handler{Store: st, Discovery: disco, validate: newValidator()}
}

// Logger sets the handler's logger; nil falls back to slog.Default().
func (h *Handler) Logger(l *slog.Logger) *Handler {
	h.logger = l
	return h
}

func (h *Handler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

// ApplyConfig applies a batch of ADPResource{Bind|Listener|Route} updates,
// returning one Result per resource. Resources are applied in the order
// given; a caller rolling out a nested add (bind, then its listener, then
// the listener's route) in that order satisfies the parent-exists
// invariants InsertListener/InsertRoute enforce.
func (h *Handler) ApplyConfig(resources []ConfigResource) []Result {
	results := make([]Result, 0, len(resources))
	for _, res := range resources {
		results = append(results, Result{Name: res.Name, Err: h.applyOne(res)})
	}
	return results
}

func (h *Handler) applyOne(res ConfigResource) error {
	switch res.Kind {
	case KindBind, KindListener, KindRoute, "":
	default:
		h.log().Warn("xds: dropping unknown config resource kind", "kind", res.Kind, "name", res.Name)
		return nil
	}
	if err := h.validate.Struct(res); err != nil {
		return formatValidationErrors(err)
	}

	path, err := parseConfigName(res.Kind, res.Name)
	if err != nil {
		return err
	}

	switch res.Kind {
	case KindBind:
		if res.Remove {
			h.Store.RemoveBind(path.bindKey)
			return nil
		}
		if res.Bind.Key != path.bindKey {
			return fmt.Errorf("xds: bind resource name %q does not match body key %q", res.Name, res.Bind.Key)
		}
		h.Store.InsertBind(res.Bind)
		return nil

	case KindListener:
		if res.Remove {
			return h.Store.RemoveListener(path.bindKey, path.listenerKey)
		}
		if res.Listener.Key != path.listenerKey {
			return fmt.Errorf("xds: listener resource name %q does not match body key %q", res.Name, res.Listener.Key)
		}
		return h.Store.InsertListener(path.bindKey, res.Listener)

	case KindRoute:
		if res.Remove {
			return h.Store.RemoveRoute(path.bindKey, path.listenerKey, path.routeKey)
		}
		if res.Route.Key != path.routeKey {
			return fmt.Errorf("xds: route resource name %q does not match body key %q", res.Name, res.Route.Key)
		}
		return h.Store.InsertRoute(path.bindKey, path.listenerKey, res.Route)

	default:
		h.log().Warn("xds: dropping unknown config resource kind", "kind", res.Kind, "name", res.Name)
		return nil
	}
}

// ApplyAddresses applies a batch of discovery Address{Workload|Service}
// updates.
func (h *Handler) ApplyAddresses(resources []AddressResource) []Result {
	results := make([]Result, 0, len(resources))
	for _, res := range resources {
		results = append(results, Result{Name: res.Name, Err: h.applyOneAddress(res)})
	}
	return results
}

func (h *Handler) applyOneAddress(res AddressResource) error {
	switch res.Kind {
	case KindWorkload, KindService, "":
	default:
		h.log().Warn("xds: dropping unknown address resource kind", "kind", res.Kind, "name", res.Name)
		return nil
	}
	if err := h.validate.Struct(res); err != nil {
		return formatValidationErrors(err)
	}

	switch res.Kind {
	case KindWorkload:
		if res.Remove {
			h.Discovery.RemoveWorkload(res.Name)
			return nil
		}
		if res.Workload.UID != res.Name {
			return fmt.Errorf("xds: workload resource name %q does not match body UID %q", res.Name, res.Workload.UID)
		}
		h.Discovery.UpsertWorkload(res.Workload)
		return nil

	case KindService:
		ref, err := parseServiceName(res.Name)
		if err != nil {
			return err
		}
		if res.Remove {
			h.Discovery.RemoveService(ref)
			return nil
		}
		if res.Service.Namespace != ref.Namespace || res.Service.Hostname != ref.Hostname {
			return fmt.Errorf("xds: service resource name %q does not match body namespace/hostname %q/%q", res.Name, res.Service.Namespace, res.Service.Hostname)
		}
		h.Discovery.UpsertService(res.Service)
		return nil

	default:
		h.log().Warn("xds: dropping unknown address resource kind", "kind", res.Kind, "name", res.Name)
		return nil
	}
}

// configPath is the bind/listener/route key chain a resource name encodes.
type configPath struct {
	bindKey     string
	listenerKey string
	routeKey    string
}

// parseConfigName decodes a resource name of the form
// "bind/<bindKey>", "listener/<bindKey>/<listenerKey>" or
// "route/<bindKey>/<listenerKey>/<routeKey>" into its key chain. The prefix
// must match Kind; a mismatch or wrong segment count is a nack, not a panic,
// since the name comes straight off the wire.
func parseConfigName(kind ConfigKind, name string) (configPath, error) {
	segs := strings.Split(name, "/")
	wantPrefix, wantLen := string(kind), 0
	switch kind {
	case KindBind:
		wantLen = 2
	case KindListener:
		wantLen = 3
	case KindRoute:
		wantLen = 4
	default:
		return configPath{}, fmt.Errorf("xds: unknown config kind %q", kind)
	}
	if len(segs) != wantLen || segs[0] != wantPrefix {
		return configPath{}, fmt.Errorf("xds: resource name %q does not match kind %q (want %q/<keys>)", name, kind, wantPrefix)
	}

	var p configPath
	p.bindKey = segs[1]
	if wantLen >= 3 {
		p.listenerKey = segs[2]
	}
	if wantLen >= 4 {
		p.routeKey = segs[3]
	}
	return p, nil
}

// parseServiceName decodes a Service resource's "<namespace>/<hostname>" name.
func parseServiceName(name string) (discovery.NamespacedHostname, error) {
	ns, hostname, ok := strings.Cut(name, "/")
	if !ok || ns == "" || hostname == "" {
		return discovery.NamespacedHostname{}, fmt.Errorf("xds: service resource name %q must be \"<namespace>/<hostname>\"", name)
	}
	return discovery.NamespacedHostname{Namespace: ns, Hostname: hostname}, nil
}
