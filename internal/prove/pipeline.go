// Package prove implements the inference-then-prove pipeline: running a
// model's forward pass, committing to input/output/model, creating a
// Proving receipt, and handing off to a background goroutine that runs
// the SNARK backend, serializes and re-verifies its own proof, and
// writes the terminal Verified/Failed update exactly once.
package prove

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zkreceipt/receipt-service/internal/apierr"
	"github.com/zkreceipt/receipt-service/internal/hashing"
	"github.com/zkreceipt/receipt-service/internal/input"
	"github.com/zkreceipt/receipt-service/internal/log"
	"github.com/zkreceipt/receipt-service/internal/metrics"
	"github.com/zkreceipt/receipt-service/internal/modelpkg"
	"github.com/zkreceipt/receipt-service/internal/preprocess"
	"github.com/zkreceipt/receipt-service/internal/receipts"
)

var logger = log.Module("prove")

// MaxBatchSize is the largest number of requests SubmitBatch accepts in
// one call, per spec.md §4.7.
const MaxBatchSize = 5

// Request is one submit_proof request: a target model, its typed input,
// and an optional webhook to notify on terminal transition.
type Request struct {
	ModelID    string
	Input      input.Request
	WebhookURL string
}

// Pipeline wires together the registry, preprocessing cache, receipt
// store, input encoder, and the two black-box collaborators (Runtime,
// System) into the single submit_proof/background-prover operation of
// spec.md §4.6.
type Pipeline struct {
	Registry   *modelpkg.Registry
	Cache      *preprocess.Cache
	Store      *receipts.Store
	Runtime    modelpkg.Runtime
	System     System
	Vocab      input.Vocabularies
	httpClient webhookSender

	proveHist  *metrics.Histogram
	verifyHist *metrics.Histogram
	inflight   *metrics.Gauge
}

// NewPipeline constructs a Pipeline instrumented on the default metrics
// registry.
func NewPipeline(reg *modelpkg.Registry, cache *preprocess.Cache, store *receipts.Store, rt modelpkg.Runtime, sys System, vocab input.Vocabularies) *Pipeline {
	return &Pipeline{
		Registry:   reg,
		Cache:      cache,
		Store:      store,
		Runtime:    rt,
		System:     sys,
		Vocab:      vocab,
		httpClient: defaultWebhookSender{},
		proveHist:  metrics.DefaultRegistry.Histogram("prove_duration_ms"),
		verifyHist: metrics.DefaultRegistry.Histogram("verify_duration_ms"),
		inflight:   metrics.DefaultRegistry.Gauge("prove_inflight"),
	}
}

// SubmitProof runs the ten-step sequence from spec.md §4.6 and returns
// the freshly created Proving receipt. The background prover is spawned
// before this function returns; the caller observes only the initial
// snapshot.
func (p *Pipeline) SubmitProof(ctx context.Context, req Request) (*receipts.Receipt, error) {
	// 1. Resolve descriptor.
	d := p.Registry.Get(req.ModelID)
	if d == nil {
		return nil, apierr.NotFoundf(fmt.Sprintf("unknown model_id %q", req.ModelID), "call GET /models to list available models")
	}

	// 2. Gate on preprocessing.
	entry, ok := p.Cache.Lookup(d.ID)
	if !ok {
		return nil, apierr.Unavailablef(
			fmt.Sprintf("model %q is still preprocessing", d.ID),
			"retry after preprocessing completes",
		)
	}

	// 3. Validate webhook.
	if req.WebhookURL != "" && !strings.HasPrefix(req.WebhookURL, "https://") {
		return nil, apierr.BadRequestf("webhook_url must use the https scheme", "use an https:// URL or omit webhook_url")
	}

	// 4. Encode input.
	tensor, err := input.Encode(d, req.Input, p.Vocab)
	if err != nil {
		return nil, apierr.BadRequestf(err.Error(), "")
	}

	// 5. Run inference with panic isolation.
	rawOutput, err := p.runInference(ctx, d, tensor)
	if err != nil {
		return nil, err
	}

	// 6. Derive prediction.
	predictedClass, confidence := derivePrediction(rawOutput)
	label := d.Label(predictedClass)

	// 7. Compute hashes.
	inputHash := hashing.HashIntTensor(tensor)
	outputHash := hashing.HashIntTensor(rawOutput)
	modelHash, err := resolveModelHash(d)
	if err != nil {
		return nil, apierr.Internalf("failed to compute model hash", "")
	}

	// 8. Create receipt with status Proving.
	receipt := &receipts.Receipt{
		ID:        uuid.NewString(),
		ModelID:   d.ID,
		ModelName: d.Name,
		Status:    receipts.StatusProving,
		CreatedAt: time.Now().Unix(),

		ModelHash:  modelHash,
		InputHash:  inputHash,
		OutputHash: outputHash,
		Output: &receipts.Output{
			RawOutput:      rawOutput,
			PredictedClass: predictedClass,
			Label:          label,
			Confidence:     confidence,
		},
	}
	if err := p.Store.Insert(receipt); err != nil {
		return nil, apierr.Internalf("failed to persist receipt", "")
	}

	// 9. Spawn background prover, detached from the originating request.
	go p.runBackgroundProver(context.Background(), receipt.ID, d, entry, tensor, req.WebhookURL)

	// 10. Return immediately with status = "proving".
	return receipt, nil
}

// SubmitBatch runs req through SubmitProof one at a time, sharing the
// exact same validation path as a single submission so the two entry
// points can never drift in behavior. A batch larger than MaxBatchSize
// is rejected wholesale before any receipt is created.
func (p *Pipeline) SubmitBatch(ctx context.Context, reqs []Request) ([]*receipts.Receipt, error) {
	if len(reqs) > MaxBatchSize {
		return nil, apierr.BadRequestf(
			fmt.Sprintf("batch of %d requests exceeds the cap of %d", len(reqs), MaxBatchSize),
			"split the batch into smaller calls",
		)
	}

	out := make([]*receipts.Receipt, 0, len(reqs))
	for _, r := range reqs {
		receipt, err := p.SubmitProof(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, receipt)
	}
	return out, nil
}

// runInference calls Runtime.Forward with panic isolation: a panic
// becomes an Internal failure carrying a specific hint, exactly as
// spec.md §4.6 step 5 requires; a non-panic error propagates as Internal
// too.
func (p *Pipeline) runInference(ctx context.Context, d *modelpkg.ModelDescriptor, tensor []int32) (out []int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("inference panic recovered", "model_id", d.ID, "panic", r)
			err = apierr.Internalf("model inference panicked", "this model's artifact may be corrupt; contact the service operator")
		}
	}()

	out, ferr := p.Runtime.Forward(ctx, d.ArtifactPath, tensor, d.InputShape)
	if ferr != nil {
		logger.Error("inference failed", "model_id", d.ID, "error", ferr)
		return nil, apierr.Internalf("model inference failed", "")
	}
	if len(out) == 0 {
		return nil, apierr.Internalf("model produced an empty output vector", "")
	}
	return out, nil
}

// derivePrediction implements spec.md §3's argmax-with-lowest-index-tie-
// break rule and the confidence formula
// |raw_output[predicted_class]| / Σ|raw_output[i]|, or 0 when the sum is
// zero.
func derivePrediction(raw []int32) (predictedClass int, confidence float64) {
	best := 0
	var sumAbs float64
	for i, v := range raw {
		sumAbs += absFloat(v)
		if v > raw[best] {
			best = i
		}
	}
	if sumAbs == 0 {
		return best, 0
	}
	return best, absFloat(raw[best]) / sumAbs
}

func absFloat(v int32) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}

// resolveModelHash prefers the descriptor's cached ModelDigest, computed
// once at admission time; when absent it falls back to a fresh digest of
// the artifact bytes. This is the spec.md §9(c) resolution of an open
// question in the source behavior.
func resolveModelHash(d *modelpkg.ModelDescriptor) (string, error) {
	if d.ModelDigest != "" {
		return d.ModelDigest, nil
	}
	return modelpkg.DigestArtifact(d.ArtifactPath)
}
