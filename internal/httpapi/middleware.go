package httpapi

import (
	"net/http"

	"github.com/zkreceipt/receipt-service/internal/apierr"
	"github.com/zkreceipt/receipt-service/internal/ratelimit"
)

// rateLimited wraps next so that requests exceeding limiter's per-client
// budget are rejected with TooManyRequests before reaching the handler,
// per spec.md §4.7: the limiter is boundary middleware, not part of the
// core's correctness surface.
func rateLimited(limiter *ratelimit.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(ratelimit.ClientKey(r)) {
			writeError(w, apierr.TooManyRequestsf("rate limit exceeded", "retry after a short delay"))
			return
		}
		next(w, r)
	}
}

// withCORS sets the configured Access-Control-Allow-Origin header (or
// omits it when no origins are configured) and short-circuits preflight
// OPTIONS requests.
func withCORS(origins string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origins != "" {
			w.Header().Set("Access-Control-Allow-Origin", origins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}
