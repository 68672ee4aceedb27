package prove

import (
	"context"
	"time"

	"github.com/zkreceipt/receipt-service/internal/hashing"
	"github.com/zkreceipt/receipt-service/internal/modelpkg"
	"github.com/zkreceipt/receipt-service/internal/preprocess"
	"github.com/zkreceipt/receipt-service/internal/receipts"
)

// runBackgroundProver is the background prover from spec.md §4.6: look
// up keys, prove, serialize, round-trip, verify, and write the single
// terminal Update. It runs detached from the originating request on its
// own goroutine (the Go stand-in for a blocking-capable worker task) and
// communicates its result strictly through the receipt store, per
// spec.md §9's "long-running tasks vs. request lifetimes" design note.
func (p *Pipeline) runBackgroundProver(ctx context.Context, receiptID string, d *modelpkg.ModelDescriptor, entry preprocess.Entry, tensor []int32, webhookURL string) {
	p.inflight.Inc()
	defer p.inflight.Dec()

	final, err := p.proveAndVerify(ctx, d, entry, tensor)
	if err != nil {
		p.failReceipt(receiptID, err.Error())
	} else {
		p.verifyReceipt(receiptID, final)
	}

	if webhookURL != "" {
		r, getErr := p.Store.Get(receiptID)
		if getErr != nil {
			logger.Error("could not load receipt for webhook delivery", "receipt_id", receiptID, "error", getErr)
			return
		}
		fireWebhook(ctx, p.httpClient, webhookURL, r)
	}
}

// proveResult carries the background prover's successful outcome into
// the terminal Update call.
type proveResult struct {
	proofHash    string
	proofSize    int
	proveTimeMs  int64
	verifyTimeMs int64
}

// proveAndVerify invokes prove, serializes the proof and program-IO,
// round-trips both back through deserialize, and verifies the
// round-tripped pair, exactly matching the self-verification sequence in
// spec.md §4.6. Any failure at any stage is normalized into a single
// error, never exposing a raw library error message to the caller.
func (p *Pipeline) proveAndVerify(ctx context.Context, d *modelpkg.ModelDescriptor, entry preprocess.Entry, tensor []int32) (r proveResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("proving panic recovered", "model_id", d.ID, "panic", rec)
			err = errNormalized("proving panicked")
		}
	}()

	proveStart := time.Now()
	proof, io, perr := p.System.Prove(ctx, entry.ProverKey, d.ArtifactPath, tensor)
	if perr != nil {
		logger.Error("prove failed", "model_id", d.ID, "error", perr)
		return proveResult{}, errNormalized("proof generation failed")
	}
	proveTimeMs := time.Since(proveStart).Milliseconds()
	p.proveHist.Observe(float64(proveTimeMs))

	proofBytes, serr := p.System.SerializeProof(proof)
	if serr != nil {
		logger.Error("proof serialization failed", "model_id", d.ID, "error", serr)
		return proveResult{}, errNormalized("proof serialization failed")
	}
	ioBytes, serr := p.System.SerializeProgramIO(io)
	if serr != nil {
		logger.Error("program-io serialization failed", "model_id", d.ID, "error", serr)
		return proveResult{}, errNormalized("program-io serialization failed")
	}

	roundTrippedProof, derr := p.System.DeserializeProof(proofBytes)
	if derr != nil {
		logger.Error("proof deserialization failed", "model_id", d.ID, "error", derr)
		return proveResult{}, errNormalized("proof deserialization failed")
	}
	roundTrippedIO, derr := p.System.DeserializeProgramIO(ioBytes)
	if derr != nil {
		logger.Error("program-io deserialization failed", "model_id", d.ID, "error", derr)
		return proveResult{}, errNormalized("program-io deserialization failed")
	}

	verifyStart := time.Now()
	if verr := p.System.Verify(ctx, entry.VerifierKey, roundTrippedIO, roundTrippedProof); verr != nil {
		logger.Error("verify failed", "model_id", d.ID, "error", verr)
		return proveResult{}, errNormalized("proof verification failed")
	}
	verifyTimeMs := time.Since(verifyStart).Milliseconds()
	p.verifyHist.Observe(float64(verifyTimeMs))

	return proveResult{
		proofHash:    hashing.HashBytes(proofBytes),
		proofSize:    len(proofBytes),
		proveTimeMs:  proveTimeMs,
		verifyTimeMs: verifyTimeMs,
	}, nil
}

// failReceipt transitions a receipt to Failed with a normalized reason.
// This and verifyReceipt are the pipeline's single terminal Update call
// per receipt (spec.md §5's at-most-once-proving, exactly-twice-write
// invariant).
func (p *Pipeline) failReceipt(receiptID, reason string) {
	now := time.Now().Unix()
	if err := p.Store.Update(receiptID, func(r *receipts.Receipt) {
		r.Status = receipts.StatusFailed
		r.Error = reason
		r.CompletedAt = &now
	}); err != nil {
		logger.Error("failed to persist Failed transition", "receipt_id", receiptID, "error", err)
	}
}

func (p *Pipeline) verifyReceipt(receiptID string, result proveResult) {
	now := time.Now().Unix()
	if err := p.Store.Update(receiptID, func(r *receipts.Receipt) {
		r.Status = receipts.StatusVerified
		r.ProofHash = result.proofHash
		r.ProofSize = result.proofSize
		r.ProveTimeMs = result.proveTimeMs
		r.VerifyTimeMs = result.verifyTimeMs
		r.CompletedAt = &now
	}); err != nil {
		logger.Error("failed to persist Verified transition", "receipt_id", receiptID, "error", err)
	}
}

// normalizedError is a short, library-independent failure reason stored
// on a Failed receipt. It deliberately carries no wrapped library error,
// per spec.md §7's "no raw library error messages exposed" policy.
type normalizedError string

func (e normalizedError) Error() string { return string(e) }

func errNormalized(reason string) error { return normalizedError(reason) }
