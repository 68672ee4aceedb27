package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCounter_IncAndAdd(t *testing.T) {
	c := NewCounter("http_requests_total")
	if c.Value() != 0 {
		t.Fatalf("initial value = %d, want 0", c.Value())
	}
	c.Inc()
	c.Add(9)
	if c.Value() != 10 {
		t.Fatalf("value = %d, want 10", c.Value())
	}
	// Counters are monotonic: negative adds are ignored.
	c.Add(-5)
	if c.Value() != 10 {
		t.Fatalf("value after Add(-5) = %d, want 10", c.Value())
	}
	if c.Name() != "http_requests_total" {
		t.Fatalf("name = %q, want %q", c.Name(), "http_requests_total")
	}
}

func TestGauge_SetIncDec(t *testing.T) {
	g := NewGauge("prove_inflight")
	g.Set(3)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 2 {
		t.Fatalf("value = %d, want 2", g.Value())
	}
}

func TestHistogram_Observe(t *testing.T) {
	h := NewHistogram("prove_duration_ms")
	if h.Count() != 0 || h.Min() != 0 || h.Max() != 0 || h.Mean() != 0 {
		t.Fatalf("empty histogram should report all zeros")
	}
	h.Observe(10)
	h.Observe(20)
	h.Observe(30)
	if h.Count() != 3 {
		t.Fatalf("count = %d, want 3", h.Count())
	}
	if h.Sum() != 60 {
		t.Fatalf("sum = %f, want 60", h.Sum())
	}
	if h.Min() != 10 || h.Max() != 30 || h.Mean() != 20 {
		t.Fatalf("min/max/mean = %f/%f/%f, want 10/30/20", h.Min(), h.Max(), h.Mean())
	}
}

func TestTimer_Stop(t *testing.T) {
	h := NewHistogram("verify_duration_ms")
	timer := NewTimer(h)
	time.Sleep(time.Millisecond)
	if timer.Stop() <= 0 {
		t.Fatal("duration should be positive")
	}
	if h.Count() != 1 {
		t.Fatalf("histogram count = %d, want 1", h.Count())
	}

	// A nil histogram must not panic on Stop.
	if d := NewTimer(nil).Stop(); d < 0 {
		t.Fatalf("nil-histogram duration = %v, want >= 0", d)
	}
}

func TestRegistry_GetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry()
	if r.Counter("prove_attempts_total") != r.Counter("prove_attempts_total") {
		t.Fatal("Counter: second call returned a different instance")
	}
	if r.Gauge("prove_inflight") != r.Gauge("prove_inflight") {
		t.Fatal("Gauge: second call returned a different instance")
	}
	if r.Histogram("prove_duration_ms") != r.Histogram("prove_duration_ms") {
		t.Fatal("Histogram: second call returned a different instance")
	}
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	results := make([]*Counter, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Counter("webhook_deliveries_total")
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent Counter() calls returned distinct instances")
		}
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	r.Counter("http_requests_total").Add(5)
	r.Gauge("prove_inflight").Set(2)
	h := r.Histogram("prove_duration_ms")
	h.Observe(10)
	h.Observe(20)

	snap := r.Snapshot()
	if snap["http_requests_total"].(int64) != 5 {
		t.Fatalf("counter snapshot = %v, want 5", snap["http_requests_total"])
	}
	if snap["prove_inflight"].(int64) != 2 {
		t.Fatalf("gauge snapshot = %v, want 2", snap["prove_inflight"])
	}
	hm := snap["prove_duration_ms"].(map[string]any)
	if hm["count"].(int64) != 2 || hm["sum"].(float64) != 30 || hm["mean"].(float64) != 15 {
		t.Fatalf("histogram snapshot = %+v, want count=2 sum=30 mean=15", hm)
	}
}

func TestDefaultRegistry_NotNil(t *testing.T) {
	if DefaultRegistry == nil {
		t.Fatal("DefaultRegistry must not be nil")
	}
	// internal/prove and internal/httpapi record into this exact instance.
	if DefaultRegistry.Counter("http_requests_total") == nil {
		t.Fatal("DefaultRegistry.Counter returned nil")
	}
}
