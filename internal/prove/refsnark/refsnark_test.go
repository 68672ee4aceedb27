package refsnark

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeArtifact(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.onnx")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProveVerify_RoundTrip(t *testing.T) {
	sys := New()
	ctx := context.Background()
	artifact := writeArtifact(t, []byte{0x08, 0x01, 0x02, 0x03})

	pk, vk, err := sys.Preprocess(ctx, artifact, 16384)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	proof, io, err := sys.Prove(ctx, pk, artifact, []int32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	if err := sys.Verify(ctx, vk, io, proof); err != nil {
		t.Fatalf("expected verification to succeed, got %v", err)
	}
}

func TestVerify_RejectsTamperedProof(t *testing.T) {
	sys := New()
	ctx := context.Background()
	artifact := writeArtifact(t, []byte{0x08, 0x01})

	pk, vk, _ := sys.Preprocess(ctx, artifact, 16384)
	proof, io, err := sys.Prove(ctx, pk, artifact, []int32{5, 6, 7})
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	proof.Response[0] ^= 0xFF

	if err := sys.Verify(ctx, vk, io, proof); err == nil {
		t.Fatal("expected verification to fail for tampered proof")
	}
}

func TestVerify_RejectsWrongVerifierKey(t *testing.T) {
	sys := New()
	ctx := context.Background()
	artifactA := writeArtifact(t, []byte{0x08, 0xAA})
	artifactB := writeArtifact(t, []byte{0x08, 0xBB})

	pkA, _, _ := sys.Preprocess(ctx, artifactA, 16384)
	_, vkB, _ := sys.Preprocess(ctx, artifactB, 16384)

	proof, io, err := sys.Prove(ctx, pkA, artifactA, []int32{1, 2})
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	if err := sys.Verify(ctx, vkB, io, proof); err == nil {
		t.Fatal("expected verification to fail against a mismatched verifier key")
	}
}

func TestProve_RejectsMismatchedProverKey(t *testing.T) {
	sys := New()
	ctx := context.Background()
	artifactA := writeArtifact(t, []byte{0x08, 0xAA})
	artifactB := writeArtifact(t, []byte{0x08, 0xBB})

	pkA, _, _ := sys.Preprocess(ctx, artifactA, 16384)

	if _, _, err := sys.Prove(ctx, pkA, artifactB, []int32{1, 2}); err == nil {
		t.Fatal("expected Prove to reject a prover key that doesn't match the artifact")
	}
}

func TestProofSerializationRoundTrip(t *testing.T) {
	sys := New()
	ctx := context.Background()
	artifact := writeArtifact(t, []byte{0x08, 0x01})
	pk, vk, _ := sys.Preprocess(ctx, artifact, 16384)
	proof, io, err := sys.Prove(ctx, pk, artifact, []int32{1, 2, 3})
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	proofBytes, err := sys.SerializeProof(proof)
	if err != nil {
		t.Fatalf("SerializeProof: %v", err)
	}
	ioBytes, err := sys.SerializeProgramIO(io)
	if err != nil {
		t.Fatalf("SerializeProgramIO: %v", err)
	}

	decodedProof, err := sys.DeserializeProof(proofBytes)
	if err != nil {
		t.Fatalf("DeserializeProof: %v", err)
	}
	decodedIO, err := sys.DeserializeProgramIO(ioBytes)
	if err != nil {
		t.Fatalf("DeserializeProgramIO: %v", err)
	}

	if err := sys.Verify(ctx, vk, decodedIO, decodedProof); err != nil {
		t.Fatalf("expected verification of round-tripped proof to succeed, got %v", err)
	}
}

func TestDeserializeProof_RejectsWrongLength(t *testing.T) {
	sys := New()
	if _, err := sys.DeserializeProof([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for malformed proof bytes")
	}
}

func TestProve_DifferentInputsProduceDifferentProofs(t *testing.T) {
	sys := New()
	ctx := context.Background()
	artifact := writeArtifact(t, []byte{0x08, 0x01})
	pk, _, _ := sys.Preprocess(ctx, artifact, 16384)

	_, ioA, _ := sys.Prove(ctx, pk, artifact, []int32{1, 2, 3})
	_, ioB, _ := sys.Prove(ctx, pk, artifact, []int32{1, 2, 4})

	if ioA.InputCommitment == ioB.InputCommitment {
		t.Fatal("expected different inputs to produce different input commitments")
	}
	if ioA.OutputCommitment == ioB.OutputCommitment {
		t.Fatal("expected different inputs to produce different output commitments")
	}
}
