// Package prove implements the inference-then-prove pipeline: running a
// model's forward pass, committing to input/output/model, creating a
// Proving receipt, and handing off to a background goroutine that runs
// the SNARK backend, serializes and re-verifies its own proof, and
// writes the terminal Verified/Failed update exactly once.
package prove

import "context"

// ProverKey, VerifierKey, Proof, and ProgramIO are opaque to this
// package: only the System implementation that produced them knows
// their concrete type. A backend's own key/proof/io struct types are
// boxed into these `any` parameters and unboxed again by that same
// backend's methods; see internal/prove/refsnark's adapter for the
// boxing boundary, which exists precisely because Go's interface
// satisfaction requires identical method signatures, not merely
// assignable ones.
type ProverKey = any
type VerifierKey = any
type Proof = any
type ProgramIO = any

// System is the black-box SNARK collaborator.
type System interface {
	Preprocess(ctx context.Context, artifactPath string, traceLength int) (ProverKey, VerifierKey, error)
	Prove(ctx context.Context, pk ProverKey, artifactPath string, input []int32) (Proof, ProgramIO, error)
	Verify(ctx context.Context, vk VerifierKey, io ProgramIO, proof Proof) error
	SerializeProof(Proof) ([]byte, error)
	DeserializeProof([]byte) (Proof, error)
	SerializeProgramIO(ProgramIO) ([]byte, error)
	DeserializeProgramIO([]byte) (ProgramIO, error)
}
