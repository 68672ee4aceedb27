// Package refsnark is the reference prove.System implementation: a
// self-consistent, deterministic stand-in for a real zkML SNARK backend,
// so the service is runnable and testable without a production circuit
// binding. It commits to the prover's witness and the circuit's public
// input/output using Keccak-256 (the same Fiat-Shamir pattern
// original_source's Rust implementation gets from arkworks'
// KeccakTranscript) and folds the witness into a single BN254 scalar
// field element using github.com/consensys/gnark-crypto, mirroring the
// original's ark_bn254::Fr field choice.
//
// This is explicitly NOT a soundness-bearing SNARK: Verify checks that
// the proof is internally consistent with the public ProgramIO and the
// VerifierKey, not that the prover actually knows a satisfying witness
// under a real constraint system. It exists so internal/prove's pipeline
// (preprocess -> prove -> serialize -> deserialize -> verify) has a real
// implementation to exercise end to end.
package refsnark

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zkreceipt/receipt-service/internal/hashing"
)

// ProverKey and VerifierKey both pin the circuit to one model artifact.
// They are identical in content (there is no asymmetric key material in
// this reference scheme); they are kept as distinct types to match the
// prove.System contract and to leave room for a real backend where
// they'd diverge.
type ProverKey struct {
	ArtifactDigest string
	TraceLength    int
}

type VerifierKey struct {
	ArtifactDigest string
	TraceLength    int
}

// ProgramIO is the circuit's public input/output commitment pair.
type ProgramIO struct {
	InputCommitment  string `json:"input_commitment"`
	OutputCommitment string `json:"output_commitment"`
	TraceLength      int    `json:"trace_length"`
}

// Proof bundles the Fiat-Shamir challenge and the folded witness
// evaluation, each a 32-byte BN254 scalar field element in canonical
// big-endian form, and a commitment to that evaluation, the raw 32-byte
// Keccak-256 digest of Response.
type Proof struct {
	Challenge          [32]byte
	Response           [32]byte
	ResponseCommitment [32]byte
}

// System implements internal/prove's System interface.
type System struct{}

// New returns a reference System.
func New() *System { return &System{} }

// Preprocess derives the (ProverKey, VerifierKey) pair for artifactPath by
// hashing its contents, matching the cached ModelDigest computation
// internal/modelpkg already performs at registration time but kept
// independent here so refsnark has no dependency on modelpkg.
func (s *System) Preprocess(ctx context.Context, artifactPath string, traceLength int) (ProverKey, VerifierKey, error) {
	b, err := os.ReadFile(artifactPath)
	if err != nil {
		return ProverKey{}, VerifierKey{}, fmt.Errorf("refsnark: read artifact: %w", err)
	}
	digest := hashing.HashBytes(b)
	return ProverKey{ArtifactDigest: digest, TraceLength: traceLength},
		VerifierKey{ArtifactDigest: digest, TraceLength: traceLength},
		nil
}

// Prove folds input into a single field element via a Keccak-driven
// Fiat-Shamir challenge and returns a Proof plus the public ProgramIO it
// attests to. artifactPath is re-hashed and checked against pk to catch
// a stale or mismatched prover key before any work is done.
func (s *System) Prove(ctx context.Context, pk ProverKey, artifactPath string, input []int32) (Proof, ProgramIO, error) {
	b, err := os.ReadFile(artifactPath)
	if err != nil {
		return Proof{}, ProgramIO{}, fmt.Errorf("refsnark: read artifact: %w", err)
	}
	if hashing.HashBytes(b) != pk.ArtifactDigest {
		return Proof{}, ProgramIO{}, fmt.Errorf("refsnark: prover key does not match artifact at %s", artifactPath)
	}

	inputCommitment := hashing.HashIntTensor(input)
	outputCommitment := deriveOutputCommitment(pk.ArtifactDigest, inputCommitment)

	challenge := challengeElement(inputCommitment, outputCommitment)
	response := foldWitness(input, challenge)

	responseBytes := elementBytes(response)
	responseCommitmentHex := hashing.HashBytes(responseBytes[:])

	io := ProgramIO{
		InputCommitment:  inputCommitment,
		OutputCommitment: outputCommitment,
		TraceLength:      pk.TraceLength,
	}
	proof := Proof{
		Challenge:          elementBytes(challenge),
		Response:           responseBytes,
		ResponseCommitment: hexTo32(responseCommitmentHex),
	}
	return proof, io, nil
}

// Verify recomputes the expected output commitment and Fiat-Shamir
// challenge from vk and io alone (no witness is available to the
// verifier) and checks the proof is internally consistent with them.
func (s *System) Verify(ctx context.Context, vk VerifierKey, io ProgramIO, proof Proof) error {
	expectedOutput := deriveOutputCommitment(vk.ArtifactDigest, io.InputCommitment)
	if expectedOutput != io.OutputCommitment {
		return fmt.Errorf("refsnark: output commitment does not match verifier key")
	}

	expectedChallenge := challengeElement(io.InputCommitment, io.OutputCommitment)
	if elementBytes(expectedChallenge) != proof.Challenge {
		return fmt.Errorf("refsnark: challenge mismatch")
	}

	expectedResponseCommitment := hexTo32(hashing.HashBytes(proof.Response[:]))
	if expectedResponseCommitment != proof.ResponseCommitment {
		return fmt.Errorf("refsnark: response commitment mismatch")
	}
	return nil
}

// SerializeProof/DeserializeProof use a fixed 96-byte layout: three
// 32-byte field elements concatenated in order.
func (s *System) SerializeProof(p Proof) ([]byte, error) {
	out := make([]byte, 0, 96)
	out = append(out, p.Challenge[:]...)
	out = append(out, p.Response[:]...)
	out = append(out, p.ResponseCommitment[:]...)
	return out, nil
}

func (s *System) DeserializeProof(b []byte) (Proof, error) {
	if len(b) != 96 {
		return Proof{}, fmt.Errorf("refsnark: malformed proof: expected 96 bytes, got %d", len(b))
	}
	var p Proof
	copy(p.Challenge[:], b[0:32])
	copy(p.Response[:], b[32:64])
	copy(p.ResponseCommitment[:], b[64:96])
	return p, nil
}

// SerializeProgramIO/DeserializeProgramIO use JSON, matching the original
// Rust implementation's choice to serialize ProgramIO as JSON between the
// prove and verify calls in src/prover.rs.
func (s *System) SerializeProgramIO(io ProgramIO) ([]byte, error) {
	return json.Marshal(io)
}

func (s *System) DeserializeProgramIO(b []byte) (ProgramIO, error) {
	var io ProgramIO
	if err := json.Unmarshal(b, &io); err != nil {
		return ProgramIO{}, fmt.Errorf("refsnark: decode program io: %w", err)
	}
	return io, nil
}

// deriveOutputCommitment binds the circuit's claimed output to the
// artifact and input commitment, so any change to either the model or
// the input invalidates it.
func deriveOutputCommitment(artifactDigest, inputCommitment string) string {
	return hashing.HashBytes([]byte(artifactDigest + inputCommitment))
}

// challengeElement derives the Fiat-Shamir challenge as a BN254 scalar
// field element from the public commitments.
func challengeElement(inputCommitment, outputCommitment string) fr.Element {
	digest := hashing.HashBytes([]byte(inputCommitment + outputCommitment))
	return elementFromHex(digest)
}

// foldWitness computes Σ input[i] * challenge^i over the BN254 scalar
// field, the "evaluation" half of the reference scheme's argument.
func foldWitness(input []int32, challenge fr.Element) fr.Element {
	var acc, power, term fr.Element
	power.SetOne()
	for _, v := range input {
		term.SetInt64(int64(v))
		term.Mul(&term, &power)
		acc.Add(&acc, &term)
		power.Mul(&power, &challenge)
	}
	return acc
}

func elementBytes(e fr.Element) [32]byte {
	return e.Bytes()
}

// elementFromHex reduces a "0x"-prefixed hex digest into the scalar
// field by taking it mod the field modulus.
func elementFromHex(hexDigest string) fr.Element {
	raw := hexDigest
	if len(raw) >= 2 && raw[0:2] == "0x" {
		raw = raw[2:]
	}
	n := new(big.Int)
	n.SetString(raw, 16)
	n.Mod(n, fr.Modulus())

	var e fr.Element
	e.SetBigInt(n)
	return e
}

func hexTo32(hexDigest string) [32]byte {
	raw := hexDigest
	if len(raw) >= 2 && raw[0:2] == "0x" {
		raw = raw[2:]
	}
	var out [32]byte
	n := new(big.Int)
	n.SetString(raw, 16)
	b := n.Bytes()
	copy(out[32-len(b):], b)
	return out
}
