package httpproxy

import (
	"bytes"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// FilterResult is the outcome of applying one Filter: either the request
// was mutated in place and the pipeline continues, or a direct response
// short-circuits the rest of the pipeline.
type FilterResult struct {
	// Direct, when non-nil, is written to the client and processing stops.
	Direct *DirectResponse
	// Mirror, when non-nil, names a second backend to dispatch a cloned
	// request to; the mirror response itself is discarded.
	Mirror *MirrorRequest
}

// DirectResponse is a literal body+status short-circuit (Filter kind
// direct_response).
type DirectResponse struct {
	StatusCode int
	Body       string
}

// MirrorRequest is a cloned request dispatched to a second backend at
// sampling probability Percent, independent of the primary response.
type MirrorRequest struct {
	BackendRef string
	Request    *http.Request
	Percent    float64
}

// ApplyFilters runs route filters in order against r, mutating headers/URL
// in place. The original request URI is
// preserved in the X-Sentinelgate-Original-Uri request header before
// UrlRewrite mutates it, so downstream logging can still report the
// pre-rewrite path.
func ApplyFilters(filters []store.Filter, r *http.Request) (FilterResult, error) {
	var result FilterResult
	for _, f := range filters {
		switch f.Kind {
		case store.FilterHeaderModifier:
			applyHeaderModifier(f, r)
		case store.FilterRequestRedirect:
			return FilterResult{Direct: buildRedirect(f, r)}, nil
		case store.FilterURLRewrite:
			applyURLRewrite(f, r)
		case store.FilterDirectResponse:
			return FilterResult{Direct: &DirectResponse{
				StatusCode: statusOr(f.StatusCode, http.StatusOK),
				Body:       f.Body,
			}}, nil
		case store.FilterRequestMirror:
			mirror, err := buildMirror(f, r)
			if err != nil {
				return FilterResult{}, err
			}
			if mirror != nil {
				result.Mirror = mirror
			}
		}
	}
	return result, nil
}

func applyHeaderModifier(f store.Filter, r *http.Request) {
	for k, v := range f.AddHeaders {
		r.Header.Add(k, v)
	}
	for k, v := range f.SetHeaders {
		r.Header.Set(k, v)
	}
	for _, k := range f.RemoveHeaders {
		r.Header.Del(k)
	}
}

func buildRedirect(f store.Filter, r *http.Request) *DirectResponse {
	scheme := f.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	authority := f.Authority
	if authority == "" {
		authority = stripDefaultPort(r.Host, scheme)
	}
	path := f.Path
	if path == "" {
		path = r.URL.Path
	}
	status := statusOr(f.StatusCode, http.StatusFound)

	loc := (&url.URL{Scheme: scheme, Host: authority, Path: path, RawQuery: r.URL.RawQuery}).String()
	return &DirectResponse{StatusCode: status, Body: loc}
}

func stripDefaultPort(host, scheme string) string {
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		return strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// applyURLRewrite mutates path/authority in place, stashing the original
// URI in a header so downstream access logging can still report it.
func applyURLRewrite(f store.Filter, r *http.Request) {
	original := r.URL.RequestURI()
	r.Header.Set("X-Sentinelgate-Original-Uri", original)
	if f.Path != "" {
		r.URL.Path = f.Path
	}
	if f.Authority != "" {
		r.Host = f.Authority
	}
}

func buildMirror(f store.Filter, r *http.Request) (*MirrorRequest, error) {
	if f.MirrorBackendRef == "" {
		return nil, nil
	}
	if rand.Float64()*100 >= f.MirrorPercent {
		return nil, nil
	}

	var body []byte
	if r.Body != nil {
		buf, err := io.ReadAll(io.LimitReader(r.Body, replayBodyCap+1))
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), r.Body))
		body = buf
	}

	clone := r.Clone(r.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	return &MirrorRequest{BackendRef: f.MirrorBackendRef, Request: clone, Percent: f.MirrorPercent}, nil
}

func statusOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
