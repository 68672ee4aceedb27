package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
)

// PrometheusExporter serves the Registry's counters, gauges, and
// histograms in Prometheus text exposition format at GET /metrics.
// Histograms (prove_duration_ms, verify_duration_ms) are exposed as a
// _count/_sum/_min/_max/_mean summary rather than true quantile buckets
// — sufficient for the dashboard the receipt service needs, and simpler
// than wiring a client library for five scraped values.

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	// Namespace is an optional prefix prepended to all metric names
	// (e.g. "zkreceipt" produces "zkreceipt_prove_duration_ms").
	Namespace string
	// Path is the HTTP path to serve metrics on (default "/metrics").
	Path string
}

// DefaultPrometheusConfig returns a config with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace: "zkreceipt",
		Path:      "/metrics",
	}
}

// PrometheusExporter formats and serves metrics over HTTP.
type PrometheusExporter struct {
	config   PrometheusConfig
	registry *Registry
}

// NewPrometheusExporter creates a new exporter that reads from the given registry.
func NewPrometheusExporter(registry *Registry, config PrometheusConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	return &PrometheusExporter{config: config, registry: registry}
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (pe *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pe.config.Path, pe.handleMetrics)
	return mux
}

func (pe *PrometheusExporter) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	var b strings.Builder
	pe.writeRegistryMetrics(&b)
	w.Write([]byte(b.String()))
}

// writeRegistryMetrics formats every metric currently in the registry,
// sorted by name within each metric kind for deterministic scrapes.
func (pe *PrometheusExporter) writeRegistryMetrics(b *strings.Builder) {
	pe.registry.mu.RLock()
	defer pe.registry.mu.RUnlock()

	for _, name := range sortedKeys(pe.registry.counters) {
		c := pe.registry.counters[name]
		promName := pe.promName(name)
		writeHelpType(b, promName, "counter")
		fmt.Fprintf(b, "%s %d\n", promName, c.Value())
	}

	for _, name := range sortedKeys(pe.registry.gauges) {
		g := pe.registry.gauges[name]
		promName := pe.promName(name)
		writeHelpType(b, promName, "gauge")
		fmt.Fprintf(b, "%s %d\n", promName, g.Value())
	}

	// Histograms are emitted as a summary's _count/_sum plus _min/_max/_mean
	// gauges, matching the fields Registry.Snapshot already exposes.
	for _, name := range sortedKeys(pe.registry.histograms) {
		h := pe.registry.histograms[name]
		promName := pe.promName(name)
		writeHelpType(b, promName, "summary")
		fmt.Fprintf(b, "%s_count %d\n", promName, h.Count())
		fmt.Fprintf(b, "%s_sum %s\n", promName, formatFloat(h.Sum()))
		if h.Count() > 0 {
			fmt.Fprintf(b, "%s_min %s\n", promName, formatFloat(h.Min()))
			fmt.Fprintf(b, "%s_max %s\n", promName, formatFloat(h.Max()))
			fmt.Fprintf(b, "%s_mean %s\n", promName, formatFloat(h.Mean()))
		}
	}
}

// promName converts a dot/hyphen-separated metric name to Prometheus
// format and prepends the configured namespace.
func (pe *PrometheusExporter) promName(name string) string {
	sanitized := strings.NewReplacer(".", "_", "-", "_").Replace(name)
	if pe.config.Namespace != "" {
		return pe.config.Namespace + "_" + sanitized
	}
	return sanitized
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	default:
		return fmt.Sprintf("%g", v)
	}
}

func writeHelpType(b *strings.Builder, name, metricType string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, name)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, metricType)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
