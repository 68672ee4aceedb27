package input

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTfIdfVocab(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")
	if err := os.WriteFile(path, []byte(`{"hello": [0, 500], "world": [1, 250]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := LoadTfIdfVocab(path)
	if err != nil {
		t.Fatalf("LoadTfIdfVocab: %v", err)
	}
	if v["hello"].Index != 0 || v["hello"].IDF != 500 {
		t.Fatalf("unexpected entry: %+v", v["hello"])
	}
}

func TestLoadOneHotVocab(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")
	if err := os.WriteFile(path, []byte(`{"age_30": 2, "age_40": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := LoadOneHotVocab(path)
	if err != nil {
		t.Fatalf("LoadOneHotVocab: %v", err)
	}
	if v["age_30"] != 2 {
		t.Fatalf("unexpected index: %d", v["age_30"])
	}
}

func TestLoadTfIdfVocab_MissingFile(t *testing.T) {
	_, err := LoadTfIdfVocab(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
