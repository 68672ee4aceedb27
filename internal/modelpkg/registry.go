package modelpkg

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/zkreceipt/receipt-service/internal/hashing"
	"github.com/zkreceipt/receipt-service/internal/log"
)

var logger = log.Module("modelpkg")

// manifestToml mirrors the on-disk model.toml shape. Field names are
// intermediate — Registry translates this into a ModelDescriptor and
// applies defaulting/validation, so the wire format can evolve without
// touching ModelDescriptor's consumers.
type manifestToml struct {
	ID          string        `toml:"id"`
	Name        string        `toml:"name"`
	Description string        `toml:"description"`
	InputKind   string        `toml:"input_kind"`
	InputDim    int           `toml:"input_dim"`
	InputShape  []int         `toml:"input_shape"`
	Labels      []string      `toml:"labels"`
	TraceLength int           `toml:"trace_length"`
	Fields      []FieldSchema `toml:"fields"`
}

// ManifestFileName is the required manifest file within a model directory.
const ManifestFileName = "model.toml"

// ArtifactFileName is the required network artifact within a model directory.
const ArtifactFileName = "network.onnx"

// LoadManifest reads and validates a model.toml at path, returning the
// descriptor it describes (without ArtifactPath or ModelDigest set — the
// caller fills those in once the artifact location is known).
func LoadManifest(path string) (*ModelDescriptor, error) {
	var m manifestToml
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, err
	}

	traceLength := m.TraceLength
	if traceLength == 0 {
		traceLength = DefaultTraceLength
	}

	inputShape := m.InputShape
	if len(inputShape) == 0 {
		inputShape = []int{1, m.InputDim}
	}

	d := &ModelDescriptor{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		InputKind:    InputKind(m.InputKind),
		InputDim:     m.InputDim,
		InputShape:   inputShape,
		Labels:       m.Labels,
		TraceLength:  traceLength,
		FieldSchemas: m.Fields,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Registry is the concurrency-safe, insertion-ordered catalogue of known
// models. Registration is append-only in terms of ordering: re-registering
// an existing ID replaces its descriptor in place without moving its
// position in Order. ScanDirectory keeps the first descriptor seen for an
// ID, and the upload path never re-registers an existing ID (it suffixes
// or rejects a colliding one), so Register's replace case is not reached
// from either.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*ModelDescriptor
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*ModelDescriptor),
	}
}

// Register adds or replaces d under d.ID. Returns true if this is a new ID.
func (r *Registry) Register(d *ModelDescriptor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.models[d.ID]
	r.models[d.ID] = d
	if !exists {
		r.order = append(r.order, d.ID)
	}
	return !exists
}

// Get returns the descriptor for id, or nil if unknown.
func (r *Registry) Get(id string) *ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[id]
}

// Unregister removes id from the registry, used by the upload path's
// atomic-admission rollback when preprocessing fails after a descriptor
// has already been registered (spec.md §4.3: "Failure removes the
// artifact directory and leaves the descriptor unregistered").
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[id]; !ok {
		return
	}
	delete(r.models, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[id]
	return ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ScanDirectory walks dir's immediate subdirectories, each expected to
// contain model.toml and network.onnx. A subdirectory missing either file
// is skipped silently (not an error — uploads in progress or
// partially-written directories are expected to appear here). On success
// the descriptor's ArtifactPath and ModelDigest are populated from the
// artifact found and registered. A duplicate ID encountered later in the
// walk is skipped: first-wins, matching original_source/src/models.rs.
func (r *Registry) ScanDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		modelDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(modelDir, ManifestFileName)
		artifactPath := filepath.Join(modelDir, ArtifactFileName)

		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		if _, err := os.Stat(artifactPath); err != nil {
			continue
		}

		d, err := LoadManifest(manifestPath)
		if err != nil {
			logger.Warn("skipping invalid model manifest", "dir", modelDir, "error", err)
			continue
		}

		if r.Has(d.ID) {
			logger.Warn("skipping duplicate model id on scan", "id", d.ID, "dir", modelDir)
			continue
		}

		digest, err := digestFile(artifactPath)
		if err != nil {
			logger.Warn("skipping model with unreadable artifact", "dir", modelDir, "error", err)
			continue
		}

		d.ArtifactPath = artifactPath
		d.ModelDigest = digest
		r.Register(d)
		logger.Info("registered model from scan", "id", d.ID, "input_kind", d.InputKind)
	}
	return nil
}

// digestFile computes the Keccak-256 content digest of the file at path,
// cached onto the descriptor at admission so the prove pipeline never
// re-reads the artifact solely to recompute model_hash.
func digestFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return hashing.HashBytes(b), nil
}

// DigestArtifact is the exported form of digestFile, used by the prove
// pipeline's model_hash fallback (spec.md §9(c)) when a descriptor was
// registered without a cached ModelDigest.
func DigestArtifact(path string) (string, error) {
	return digestFile(path)
}
