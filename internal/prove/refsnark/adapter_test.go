package refsnark

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.onnx")
	if err := os.WriteFile(path, []byte{0x08, 0x01, 0x02, 0x03}, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestAdapter_RoundTrip(t *testing.T) {
	adapter := NewAdapter()
	artifact := writeTestArtifact(t)
	ctx := context.Background()

	pk, vk, err := adapter.Preprocess(ctx, artifact, 1024)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	proof, io, err := adapter.Prove(ctx, pk, artifact, []int32{1, 2, 3})
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	if err := adapter.Verify(ctx, vk, io, proof); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	proofBytes, err := adapter.SerializeProof(proof)
	if err != nil {
		t.Fatalf("SerializeProof: %v", err)
	}
	roundTrippedProof, err := adapter.DeserializeProof(proofBytes)
	if err != nil {
		t.Fatalf("DeserializeProof: %v", err)
	}

	ioBytes, err := adapter.SerializeProgramIO(io)
	if err != nil {
		t.Fatalf("SerializeProgramIO: %v", err)
	}
	roundTrippedIO, err := adapter.DeserializeProgramIO(ioBytes)
	if err != nil {
		t.Fatalf("DeserializeProgramIO: %v", err)
	}

	if err := adapter.Verify(ctx, vk, roundTrippedIO, roundTrippedProof); err != nil {
		t.Fatalf("Verify after round-trip: %v", err)
	}
}

func TestAdapter_RejectsForeignProverKey(t *testing.T) {
	adapter := NewAdapter()
	artifact := writeTestArtifact(t)
	ctx := context.Background()

	_, _, err := adapter.Prove(ctx, "not-a-prover-key", artifact, []int32{1})
	if err == nil {
		t.Fatal("expected type-assertion error for foreign ProverKey")
	}
}

func TestAdapter_RejectsForeignVerifierKey(t *testing.T) {
	adapter := NewAdapter()
	artifact := writeTestArtifact(t)
	ctx := context.Background()

	_, io, err := adapter.Prove(ctx, mustPreprocess(t, adapter, artifact), artifact, []int32{1})
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	if err := adapter.Verify(ctx, 42, io, nil); err == nil {
		t.Fatal("expected type-assertion error for foreign VerifierKey")
	}
}

func mustPreprocess(t *testing.T, adapter interface {
	Preprocess(ctx context.Context, artifactPath string, traceLength int) (any, any, error)
}, artifact string) any {
	t.Helper()
	pk, _, err := adapter.Preprocess(context.Background(), artifact, 1024)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	return pk
}
