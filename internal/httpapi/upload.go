package httpapi

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/zkreceipt/receipt-service/internal/apierr"
	"github.com/zkreceipt/receipt-service/internal/hashing"
	"github.com/zkreceipt/receipt-service/internal/modelpkg"
	"github.com/zkreceipt/receipt-service/internal/preprocess"
)

// registerUploadedModel validates the multipart fields, writes the
// artifact to a fresh directory under UploadedModelsDir, and registers
// a raw-input ModelDescriptor for it. It does not preprocess: callers
// pick the async (admitUploadedModel) or synchronous
// (admitUploadedModelSync) preprocessing path depending on whether
// they need the cache entry ready before returning.
func (s *Server) registerUploadedModel(name string, inputDim int, labels []string, traceLength int, artifact []byte) (d *modelpkg.ModelDescriptor, modelDir string, err error) {
	if name == "" {
		return nil, "", apierr.BadRequestf("missing name", "the \"name\" form field is required")
	}
	if inputDim <= 0 {
		return nil, "", apierr.BadRequestf("missing or invalid input_dim", "the \"input_dim\" form field must be a positive integer")
	}
	if len(labels) == 0 {
		return nil, "", apierr.BadRequestf("missing labels", "at least one \"labels[]\" form field is required")
	}
	if traceLength == 0 {
		traceLength = modelpkg.DefaultTraceLength
	}

	id := slugify(name)
	if id == "" || s.Registry.Has(id) {
		id = id + "-" + uuid.NewString()[:8]
	}
	if s.Registry.Has(id) {
		return nil, "", apierr.BadRequestf("model id already registered", "choose a different model name")
	}

	modelDir = filepath.Join(s.UploadedModelsDir, id)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return nil, "", apierr.Internalf("failed to create model directory", "")
	}

	artifactPath := filepath.Join(modelDir, modelpkg.ArtifactFileName)
	if err := os.WriteFile(artifactPath, artifact, 0o644); err != nil {
		os.RemoveAll(modelDir)
		return nil, "", apierr.Internalf("failed to write artifact", "")
	}

	d = &modelpkg.ModelDescriptor{
		ID:           id,
		Name:         name,
		InputKind:    modelpkg.InputRaw,
		InputDim:     inputDim,
		InputShape:   []int{1, inputDim},
		Labels:       labels,
		TraceLength:  traceLength,
		ArtifactPath: artifactPath,
		ModelDigest:  hashing.HashBytes(artifact),
	}
	if err := d.Validate(); err != nil {
		os.RemoveAll(modelDir)
		return nil, "", apierr.Unprocessablef("model descriptor failed validation", err.Error())
	}

	s.Registry.Register(d)
	return d, modelDir, nil
}

// admitUploadedModel implements the upload-then-preprocess path from
// spec.md §4.3: registers the descriptor, then spawns an asynchronous
// preprocessing task. Admission is atomic — if preprocessing fails, the
// artifact directory is removed and the descriptor is unregistered,
// never left half-admitted.
func (s *Server) admitUploadedModel(ctx context.Context, name string, inputDim int, labels []string, traceLength int, artifact []byte) (*modelpkg.ModelDescriptor, string, error) {
	d, modelDir, err := s.registerUploadedModel(name, inputDim, labels, traceLength, artifact)
	if err != nil {
		return nil, "", err
	}

	go func() {
		pk, vk, err := s.Pipeline.System.Preprocess(ctx, d.ArtifactPath, d.TraceLength)
		if err != nil {
			logger.Error("upload preprocessing failed, rolling back admission", "model_id", d.ID, "error", err)
			s.Registry.Unregister(d.ID)
			os.RemoveAll(modelDir)
			return
		}
		s.Cache.Insert(d.ID, preprocess.Entry{ProverKey: pk, VerifierKey: vk})
		logger.Info("upload preprocessing complete", "model_id", d.ID)
	}()

	return d, "preprocessing", nil
}

// admitUploadedModelSync implements spec.md §4.6's "upload-then-prove"
// variant: preprocessing runs on the calling goroutine so the cache
// entry exists before the caller moves on to SubmitProof. On failure
// the admission is rolled back exactly as in the async path, just
// without the detached goroutine.
func (s *Server) admitUploadedModelSync(ctx context.Context, name string, inputDim int, labels []string, traceLength int, artifact []byte) (*modelpkg.ModelDescriptor, error) {
	if len(labels) == 0 {
		// original_source/src/handlers/prove_model.rs defaults missing
		// labels for its unified upload-and-prove endpoint rather than
		// rejecting, since the caller only cares about getting a proof
		// back, not about curating a label set.
		labels = []string{"class_0", "class_1"}
	}

	d, modelDir, err := s.registerUploadedModel(name, inputDim, labels, traceLength, artifact)
	if err != nil {
		return nil, err
	}

	pk, vk, err := s.Pipeline.System.Preprocess(ctx, d.ArtifactPath, d.TraceLength)
	if err != nil {
		logger.Error("synchronous upload preprocessing failed, rolling back admission", "model_id", d.ID, "error", err)
		s.Registry.Unregister(d.ID)
		os.RemoveAll(modelDir)
		return nil, apierr.Unprocessablef("model preprocessing failed", "the model may use unsupported operations")
	}
	s.Cache.Insert(d.ID, preprocess.Entry{ProverKey: pk, VerifierKey: vk})
	return d, nil
}

// slugify lowercases name and replaces runs of non-alphanumeric
// characters with a single hyphen, producing a stable, URL-safe model id
// candidate from a human-supplied display name.
func slugify(name string) string {
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
