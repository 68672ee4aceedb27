package refsnark

import (
	"context"
	"fmt"

	"github.com/zkreceipt/receipt-service/internal/prove"
)

// adapter boxes this package's concrete ProverKey/VerifierKey/Proof/
// ProgramIO structs into the `any`-typed parameters prove.System
// requires, and unboxes them again on the way back in. Go's interface
// satisfaction needs identical method signatures, not merely assignable
// ones, so System itself cannot implement prove.System directly even
// though every value it produces is trivially assignable to `any`.
type adapter struct {
	sys *System
}

// NewAdapter returns a prove.System backed by the reference SNARK.
func NewAdapter() prove.System {
	return adapter{sys: New()}
}

func (a adapter) Preprocess(ctx context.Context, artifactPath string, traceLength int) (prove.ProverKey, prove.VerifierKey, error) {
	pk, vk, err := a.sys.Preprocess(ctx, artifactPath, traceLength)
	return pk, vk, err
}

func (a adapter) Prove(ctx context.Context, pk prove.ProverKey, artifactPath string, input []int32) (prove.Proof, prove.ProgramIO, error) {
	concretePK, ok := pk.(ProverKey)
	if !ok {
		return nil, nil, fmt.Errorf("refsnark: expected ProverKey, got %T", pk)
	}
	proof, io, err := a.sys.Prove(ctx, concretePK, artifactPath, input)
	return proof, io, err
}

func (a adapter) Verify(ctx context.Context, vk prove.VerifierKey, io prove.ProgramIO, proof prove.Proof) error {
	concreteVK, ok := vk.(VerifierKey)
	if !ok {
		return fmt.Errorf("refsnark: expected VerifierKey, got %T", vk)
	}
	concreteIO, ok := io.(ProgramIO)
	if !ok {
		return fmt.Errorf("refsnark: expected ProgramIO, got %T", io)
	}
	concreteProof, ok := proof.(Proof)
	if !ok {
		return fmt.Errorf("refsnark: expected Proof, got %T", proof)
	}
	return a.sys.Verify(ctx, concreteVK, concreteIO, concreteProof)
}

func (a adapter) SerializeProof(proof prove.Proof) ([]byte, error) {
	concreteProof, ok := proof.(Proof)
	if !ok {
		return nil, fmt.Errorf("refsnark: expected Proof, got %T", proof)
	}
	return a.sys.SerializeProof(concreteProof)
}

func (a adapter) DeserializeProof(b []byte) (prove.Proof, error) {
	return a.sys.DeserializeProof(b)
}

func (a adapter) SerializeProgramIO(io prove.ProgramIO) ([]byte, error) {
	concreteIO, ok := io.(ProgramIO)
	if !ok {
		return nil, fmt.Errorf("refsnark: expected ProgramIO, got %T", io)
	}
	return a.sys.SerializeProgramIO(concreteIO)
}

func (a adapter) DeserializeProgramIO(b []byte) (prove.ProgramIO, error) {
	return a.sys.DeserializeProgramIO(b)
}
