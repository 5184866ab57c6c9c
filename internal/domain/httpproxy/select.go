package httpproxy

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// SelectListener chooses the most specific HTTP(S) listener on bind whose
// Hostname matches the request's Host/authority, using the same
// specificity rules as SNI matching (exact > wildcard suffix > empty
// catch-all).
func SelectListener(listeners []*store.Listener, host string) *store.Listener {
	host = stripPort(host)

	var exact, wildcard, catchAll *store.Listener
	for _, l := range listeners {
		if l.Protocol != store.ProtocolHTTP && l.Protocol != store.ProtocolHTTPS {
			continue
		}
		switch {
		case l.Hostname == "":
			if catchAll == nil {
				catchAll = l
			}
		case l.Hostname == host:
			if exact == nil {
				exact = l
			}
		case strings.HasPrefix(l.Hostname, "*.") && strings.HasSuffix(host, l.Hostname[1:]):
			if wildcard == nil {
				wildcard = l
			}
		}
	}
	if exact != nil {
		return exact
	}
	if wildcard != nil {
		return wildcard
	}
	return catchAll
}

func stripPort(hostport string) string {
	if i := strings.LastIndex(hostport, ":"); i >= 0 && !strings.Contains(hostport[i:], "]") {
		return hostport[:i]
	}
	return hostport
}

// SelectRoute picks the first Route (routes are pre-sorted by specificity
// by internal/domain/store) with at least one RouteMatch that matches r in
// full.
func SelectRoute(routes []*store.Route, r *http.Request) *store.Route {
	for _, route := range routes {
		for _, m := range route.Matches {
			if matchOne(m, r) {
				return route
			}
		}
	}
	return nil
}

func matchOne(m store.RouteMatch, r *http.Request) bool {
	if m.Method != "" && !strings.EqualFold(m.Method, r.Method) {
		return false
	}
	if !matchPath(m, r.URL.Path) {
		return false
	}
	for _, h := range m.Headers {
		if !matchRule(h, r.Header.Get(h.Name)) {
			return false
		}
	}
	for _, q := range m.Query {
		if !matchRule(q, r.URL.Query().Get(q.Name)) {
			return false
		}
	}
	return true
}

func matchPath(m store.RouteMatch, path string) bool {
	switch m.PathKind {
	case store.PathExact:
		return path == m.Path
	case store.PathPrefix:
		return strings.HasPrefix(path, m.Path)
	case store.PathRegex:
		re, err := regexp.Compile(m.Path)
		if err != nil {
			return false
		}
		return re.MatchString(path)
	default:
		return false
	}
}

func matchRule(rule store.MatchRule, value string) bool {
	if rule.Regex {
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}
	return value == rule.Value
}
