package preprocess

import (
	"context"
	"fmt"

	"github.com/zkreceipt/receipt-service/internal/log"
	"github.com/zkreceipt/receipt-service/internal/modelpkg"
)

var logger = log.Module("preprocess")

// PreprocessFunc performs the expensive prover/verifier key derivation
// for one model's artifact. It is a plain function type rather than an
// interface so that internal/prove (which defines the concrete System
// interface with its own ProverKey/VerifierKey types) can depend on
// internal/preprocess without a cycle: prove wraps its System.Preprocess
// method in a closure of this shape when calling into this package.
type PreprocessFunc func(ctx context.Context, artifactPath string, traceLength int) (proverKey, verifierKey any, err error)

// PopulateAll runs preprocessing for every model in reg that is not
// already cached, one at a time, and inserts successes into cache. This
// mirrors the startup sweep in original_source/src/main.rs: models whose
// artifact is missing or whose preprocessing panics are logged and
// skipped rather than aborting the whole sweep, so one bad model cannot
// prevent the rest of the catalogue from becoming servable.
func PopulateAll(ctx context.Context, fn PreprocessFunc, reg *modelpkg.Registry, cache *Cache) {
	for _, d := range reg.List() {
		if cache.Contains(d.ID) {
			continue
		}
		PopulateOne(ctx, fn, d, cache)
	}
}

// PopulateOne runs preprocessing for a single descriptor and, on success,
// inserts the result into cache. Panics raised by fn are recovered and
// converted into a logged error, the Go equivalent of the Rust
// implementation's catch_unwind(AssertUnwindSafe(...)) around inference
// and preprocessing calls.
func PopulateOne(ctx context.Context, fn PreprocessFunc, d *modelpkg.ModelDescriptor, cache *Cache) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("preprocessing panicked for model %q: %v", d.ID, r)
			logger.Error("preprocessing panic recovered", "model_id", d.ID, "panic", r)
		}
	}()

	if d.ArtifactPath == "" {
		return fmt.Errorf("model %q has no artifact path", d.ID)
	}

	pk, vk, perr := fn(ctx, d.ArtifactPath, d.TraceLength)
	if perr != nil {
		logger.Error("preprocessing failed", "model_id", d.ID, "error", perr)
		return perr
	}

	cache.Insert(d.ID, Entry{ProverKey: pk, VerifierKey: vk})
	logger.Info("preprocessing complete", "model_id", d.ID)
	return nil
}
