// Package cors implements CORS preflight short-circuiting and response
// header injection for the HTTP proxy pipeline's Cors policy.
package cors

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// IsPreflight reports whether r is a CORS preflight request: an OPTIONS
// request carrying both Origin and Access-Control-Request-Method.
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// ApplyPreflight writes the preflight response headers and a 204 status
// when origin is allowed by policy; it writes nothing and returns false
// when the origin is not allowed, leaving the caller free to fall through
// to normal route processing (which will itself 404/403 as appropriate).
func ApplyPreflight(w http.ResponseWriter, r *http.Request, p *store.Policy) bool {
	origin := r.Header.Get("Origin")
	if !originAllowed(origin, p.CorsAllowOrigins) {
		return false
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	if len(p.CorsAllowMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(p.CorsAllowMethods, ", "))
	}
	if len(p.CorsAllowHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(p.CorsAllowHeaders, ", "))
	}
	if p.CorsMaxAgeSec > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(p.CorsMaxAgeSec))
	}
	w.WriteHeader(http.StatusNoContent)
	return true
}

// ApplyResponseHeaders annotates a non-preflight response with the
// Access-Control-Allow-Origin header so the browser accepts the body.
func ApplyResponseHeaders(w http.ResponseWriter, r *http.Request, p *store.Policy) {
	origin := r.Header.Get("Origin")
	if origin == "" || !originAllowed(origin, p.CorsAllowOrigins) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
}
