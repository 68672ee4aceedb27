// Package ratelimit implements per-endpoint, per-client token-bucket
// admission control at the HTTP boundary, mirroring the shape of the
// teacher's own per-client rate limiter (pkg/rpc/rate_limiter.go) but
// built on golang.org/x/time/rate's token bucket instead of a hand-rolled
// one, since this repo's boundary concerns favor the ecosystem library
// the ambient dependency set already supplies.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes one endpoint's admission policy. These are boundary
// tuning parameters, not part of the core's correctness surface, per
// spec.md §4.7.
type Config struct {
	// RequestsPerMinute is the sustained rate allowed per client.
	RequestsPerMinute float64
	// Burst is the maximum number of requests a client may make
	// instantaneously before being throttled to the sustained rate.
	Burst int
}

// DefaultConfigs returns the three endpoint tunables named in spec.md
// §4.7: submit-proof is budgeted well under 1 req/s per client, batch
// submissions are rarer and heavier, and uploads are rate-limited most
// strictly of all.
func DefaultConfigs() (submitProof, batch, upload Config) {
	return Config{RequestsPerMinute: 10, Burst: 3},
		Config{RequestsPerMinute: 2, Burst: 1},
		Config{RequestsPerMinute: 1.0 / 5, Burst: 1}
}

// clientEntry pairs a client's limiter with its last-seen time, so an
// idle client's entry can eventually be swept — matching the teacher's
// own clientEntry.lastActive bookkeeping, minus the ban/statistics
// fields this boundary doesn't need.
type clientEntry struct {
	limiter    *rate.Limiter
	lastActive time.Time
}

// Limiter is a per-client token bucket for one endpoint. Clients are
// keyed by caller-supplied string (typically the remote IP); entries are
// created lazily on first sight.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	cfg     Config
}

// New returns a Limiter enforcing cfg per distinct client key.
func New(cfg Config) *Limiter {
	return &Limiter{
		clients: make(map[string]*clientEntry),
		cfg:     cfg,
	}
}

// Allow reports whether the client identified by key may proceed now,
// consuming one token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	entry, ok := l.clients[key]
	if !ok {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMinute/60), l.cfg.Burst),
		}
		l.clients[key] = entry
	}
	entry.lastActive = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Sweep removes client entries idle longer than maxIdle, bounding the
// map's growth for long-running processes with many distinct callers.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.clients {
		if entry.lastActive.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// ClientKey extracts the rate-limit identity from a request: the remote
// address without its port, since a proxy-terminated TLS connection's
// port is not a meaningful dimension for per-caller limiting.
func ClientKey(r *http.Request) string {
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
