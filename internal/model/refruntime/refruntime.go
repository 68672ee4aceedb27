// Package refruntime is the reference modelpkg.Runtime implementation: a
// deterministic stand-in for a real ONNX forward pass, so the service is
// runnable and testable without binding to an actual ONNX runtime. It
// exists for the same reason internal/prove/refsnark exists: every
// external collaborator in spec.md §6 is a narrow interface, and this
// package is the default behind one of them.
//
// Artifacts this runtime accepts begin with the same single
// sanity-check byte used at upload time (spec.md §9(a): artifact[0] ==
// 0x08), followed by one byte giving the number of output classes. Each
// output logit is a deterministic Keccak-derived value of the artifact
// bytes, the input vector, and the class index, so the same (artifact,
// input) pair always forwards to the same output — the property the
// prove pipeline's self-verification step depends on.
package refruntime

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/zkreceipt/receipt-service/internal/hashing"
)

// ArtifactMagic is the required first byte of a valid artifact.
const ArtifactMagic = 0x08

// Runtime implements modelpkg.Runtime.
type Runtime struct{}

// New returns a reference Runtime.
func New() *Runtime { return &Runtime{} }

// Forward reads the artifact at artifactPath, validates its header, and
// returns a deterministic output vector of the declared class count.
func (r *Runtime) Forward(ctx context.Context, artifactPath string, input []int32, shape []int) ([]int32, error) {
	b, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("refruntime: read artifact: %w", err)
	}
	if len(b) < 2 {
		return nil, fmt.Errorf("refruntime: artifact too short to contain a header")
	}
	if b[0] != ArtifactMagic {
		return nil, fmt.Errorf("refruntime: artifact missing 0x%02x sanity marker", ArtifactMagic)
	}

	numClasses := int(b[1])
	if numClasses == 0 {
		return nil, fmt.Errorf("refruntime: artifact declares zero output classes")
	}

	artifactDigest := hashing.HashBytes(b)
	inputDigest := hashing.HashIntTensor(input)

	out := make([]int32, numClasses)
	for i := range out {
		seed := []byte(artifactDigest + inputDigest)
		seed = binary.BigEndian.AppendUint32(seed, uint32(i))
		classDigest := hashing.HashBytes(seed)
		out[i] = logitFromDigest(classDigest)
	}
	return out, nil
}

// logitFromDigest folds a hex digest's first four bytes into a signed
// int32, giving each class a deterministic but unpredictable logit.
func logitFromDigest(digest string) int32 {
	raw := digest
	if len(raw) >= 2 && raw[0:2] == "0x" {
		raw = raw[2:]
	}
	var b [4]byte
	for i := 0; i < 4; i++ {
		var v byte
		fmt.Sscanf(raw[i*2:i*2+2], "%02x", &v)
		b[i] = v
	}
	return int32(binary.BigEndian.Uint32(b[:]))
}
