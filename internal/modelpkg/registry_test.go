package modelpkg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeModel(t *testing.T, dir, id, manifest string, artifact []byte) {
	t.Helper()
	modelDir := filepath.Join(dir, id)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, ManifestFileName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if artifact != nil {
		if err := os.WriteFile(filepath.Join(modelDir, ArtifactFileName), artifact, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

const validManifest = `
id = "sentiment"
name = "Sentiment Classifier"
input_kind = "text"
input_dim = 512
labels = ["negative", "positive"]
trace_length = 16384
`

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	d := &ModelDescriptor{ID: "m1", InputKind: InputRaw, InputDim: 4, Labels: []string{"a", "b"}, TraceLength: 16}

	isNew := r.Register(d)
	if !isNew {
		t.Fatal("expected first registration to report new")
	}
	if r.Get("m1") != d {
		t.Fatal("Get did not return registered descriptor")
	}
	if r.Get("missing") != nil {
		t.Fatal("expected nil for unknown id")
	}
}

func TestRegistry_ReregisterKeepsOrder(t *testing.T) {
	r := NewRegistry()
	a := &ModelDescriptor{ID: "a", InputKind: InputRaw, InputDim: 1, Labels: []string{"x"}, TraceLength: 2}
	b := &ModelDescriptor{ID: "b", InputKind: InputRaw, InputDim: 1, Labels: []string{"x"}, TraceLength: 2}
	r.Register(a)
	r.Register(b)

	replacement := &ModelDescriptor{ID: "a", Name: "updated", InputKind: InputRaw, InputDim: 1, Labels: []string{"x"}, TraceLength: 2}
	isNew := r.Register(replacement)
	if isNew {
		t.Fatal("re-registration of existing id should not report new")
	}

	list := r.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("expected order [a, b], got %v", ids(list))
	}
	if list[0].Name != "updated" {
		t.Fatal("re-registration should replace the descriptor in place")
	}
}

func ids(list []*ModelDescriptor) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.ID
	}
	return out
}

func TestLoadManifest_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, []byte(`
id = "m"
name = "M"
input_kind = "raw"
input_dim = 8
labels = ["c0", "c1"]
`), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if d.TraceLength != DefaultTraceLength {
		t.Fatalf("expected default trace length %d, got %d", DefaultTraceLength, d.TraceLength)
	}
	if len(d.InputShape) != 2 || d.InputShape[0] != 1 || d.InputShape[1] != 8 {
		t.Fatalf("expected default shape [1, 8], got %v", d.InputShape)
	}
}

func TestLoadManifest_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, []byte(`
id = "m"
name = "M"
input_kind = "bogus"
input_dim = 8
labels = ["c0"]
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for unrecognized input_kind")
	}
}

func TestRegistry_ScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "sentiment", validManifest, []byte{0x08, 0x01, 0x02})
	// A directory missing the artifact should be skipped silently.
	writeModel(t, dir, "incomplete", validManifest, nil)

	r := NewRegistry()
	if err := r.ScanDirectory(dir); err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("expected 1 registered model, got %d", r.Len())
	}
	d := r.Get("sentiment")
	if d == nil {
		t.Fatal("expected sentiment to be registered")
	}
	if d.ModelDigest == "" {
		t.Fatal("expected ModelDigest to be populated from artifact bytes")
	}
	if d.ArtifactPath == "" {
		t.Fatal("expected ArtifactPath to be populated")
	}
}

func TestRegistry_ScanDirectory_FirstWinsOnDuplicate(t *testing.T) {
	dir := t.TempDir()
	// Two directories register the same model id; scan order is the
	// directory read order, which os.ReadDir sorts by filename.
	// "a_first" sorts before "b_second".
	manifestA := `
id = "dup"
name = "First"
input_kind = "raw"
input_dim = 4
labels = ["a"]
`
	manifestB := `
id = "dup"
name = "Second"
input_kind = "raw"
input_dim = 4
labels = ["a"]
`
	writeModel(t, dir, "a_first", manifestA, []byte{0x08})
	writeModel(t, dir, "b_second", manifestB, []byte{0x08})

	r := NewRegistry()
	if err := r.ScanDirectory(dir); err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected single registration for duplicate id, got %d", r.Len())
	}
	if r.Get("dup").Name != "First" {
		t.Fatalf("expected first-wins, got descriptor named %q", r.Get("dup").Name)
	}
}

func TestRegistry_ScanDirectory_MissingDir(t *testing.T) {
	r := NewRegistry()
	if err := r.ScanDirectory(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Fatalf("expected no error for missing directory, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatal("expected empty registry")
	}
}
