// Package input turns a prove request's raw JSON input (text, structured
// fields, or a raw tensor) into the fixed-dimension int32 vector a model
// expects, mirroring the three InputKind variants in internal/modelpkg.
package input

import (
	"encoding/json"
	"os"
)

// TfIdfEntry is one vocabulary entry: the feature's vector index and its
// inverse-document-frequency weight, pre-scaled by 1000 and truncated to
// an integer so the resulting feature vector stays in exact integer
// arithmetic all the way to the SNARK trace, matching
// original_source/src/input.rs's IdfScale constant.
type TfIdfEntry struct {
	Index int
	IDF   int32
}

// TfIdfVocab maps a lowercased token to its vocabulary entry.
type TfIdfVocab map[string]TfIdfEntry

// OneHotVocab maps a "{field_name}_{value}" feature key to its vector
// index.
type OneHotVocab map[string]int

// IDFScale is the fixed-point scale applied to IDF weights when a
// vocab.json is generated; values are already pre-scaled on disk so this
// constant exists only for documentation of the contract.
const IDFScale = 1000.0

// tfidfJSON is the on-disk shape of a TF-IDF vocab.json: token -> [index, idf_scaled].
type tfidfJSON map[string][2]int64

// LoadTfIdfVocab reads a TF-IDF vocabulary file.
func LoadTfIdfVocab(path string) (TfIdfVocab, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw tfidfJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	v := make(TfIdfVocab, len(raw))
	for token, pair := range raw {
		v[token] = TfIdfEntry{Index: int(pair[0]), IDF: int32(pair[1])}
	}
	return v, nil
}

// onehotJSON is the on-disk shape of a one-hot vocab.json: feature_key -> index.
type onehotJSON map[string]int

// LoadOneHotVocab reads a one-hot vocabulary file.
func LoadOneHotVocab(path string) (OneHotVocab, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw onehotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return OneHotVocab(raw), nil
}
