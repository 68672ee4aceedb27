package metrics

import "sync"

// Registry is the process-wide catalogue of counters, gauges, and
// histograms the receipt service records into: HTTP request counts
// (internal/httpapi), prove/verify durations and in-flight proof count
// (internal/prove). Metrics are created on first access so callers
// never need a separate registration step.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// DefaultRegistry is the registry internal/prove and internal/httpapi
// record into; internal/httpapi/server.go exposes it at GET /metrics
// through a PrometheusExporter.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// Counter returns the Counter registered under name, creating it if it
// does not exist yet.
func (r *Registry) Counter(name string) *Counter {
	return getOrCreate(&r.mu, r.counters, name, NewCounter)
}

// Gauge returns the Gauge registered under name, creating it if it does
// not exist yet.
func (r *Registry) Gauge(name string) *Gauge {
	return getOrCreate(&r.mu, r.gauges, name, NewGauge)
}

// Histogram returns the Histogram registered under name, creating it if
// it does not exist yet.
func (r *Registry) Histogram(name string) *Histogram {
	return getOrCreate(&r.mu, r.histograms, name, NewHistogram)
}

// getOrCreate implements the read-locked fast path / write-locked
// double-checked slow path shared by Counter, Gauge, and Histogram,
// generic over the metric type so the three accessors above don't each
// repeat the locking dance.
func getOrCreate[M any](mu *sync.RWMutex, m map[string]M, name string, newFn func(string) M) M {
	mu.RLock()
	v, ok := m[name]
	mu.RUnlock()
	if ok {
		return v
	}

	mu.Lock()
	defer mu.Unlock()
	if v, ok = m[name]; ok {
		return v
	}
	v = newFn(name)
	m[name] = v
	return v
}

// Snapshot returns a point-in-time copy of every metric value in the
// registry, keyed by metric name. Counters and gauges map to int64;
// histograms map to a small summary (count/sum/min/max/mean).
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]any, len(r.counters)+len(r.gauges)+len(r.histograms))
	for name, c := range r.counters {
		snap[name] = c.Value()
	}
	for name, g := range r.gauges {
		snap[name] = g.Value()
	}
	for name, h := range r.histograms {
		snap[name] = map[string]any{
			"count": h.Count(),
			"sum":   h.Sum(),
			"min":   h.Min(),
			"max":   h.Max(),
			"mean":  h.Mean(),
		}
	}
	return snap
}
