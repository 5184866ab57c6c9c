package httpproxy

import (
	"io"
	"net/http"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// inspectBodyCap is the maximum number of request body bytes buffered for
// CEL expressions that reference request.body.
const inspectBodyCap = 64 * 1024

// referencesRequestBody reports whether any of exprs mentions request.body,
// the signal that the pipeline must buffer the body before building the CEL
// context instead of leaving it streaming.
func referencesRequestBody(exprs []string) bool {
	for _, e := range exprs {
		if strings.Contains(e, "request.body") {
			return true
		}
	}
	return false
}

// BuildRequestContext starts an EvaluationContext from the inbound request,
// buffering up to inspectBodyCap of the body when needed so CEL can read it
// without consuming the original reader. It returns the (possibly
// replaced) request body reader the caller must install back onto r.Body.
func BuildRequestContext(r *http.Request, needsBody bool) (policy.EvaluationContext, io.ReadCloser, error) {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	ctx := policy.EvaluationContext{
		Protocol:       "http",
		RequestMethod:  r.Method,
		RequestURI:     r.URL.RequestURI(),
		RequestHeaders: headers,
	}

	if !needsBody || r.Body == nil {
		return ctx, r.Body, nil
	}

	limited := io.LimitReader(r.Body, inspectBodyCap+1)
	buf, err := io.ReadAll(limited)
	if err != nil {
		return ctx, r.Body, err
	}
	inspect := buf
	if len(inspect) > inspectBodyCap {
		inspect = inspect[:inspectBodyCap]
	}
	ctx.RequestBody = string(inspect)

	rest := io.NopCloser(io.MultiReader(strings.NewReader(string(buf)), r.Body))
	return ctx, rest, nil
}
