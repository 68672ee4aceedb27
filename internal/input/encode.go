package input

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zkreceipt/receipt-service/internal/modelpkg"
)

// MaxTextLength is the maximum accepted length, in characters, of a text
// input, per spec.md §5 and original_source/src/handlers/prove.rs.
const MaxTextLength = 10000

// tokenPattern splits text into words and individual punctuation/symbol
// characters, matching original_source/src/input.rs's lazy_static TOKENIZER.
var tokenPattern = regexp.MustCompile(`\w+|[^\w\s]`)

// Error is a user-facing input validation failure, carrying both a
// message and an actionable hint, mirroring the ErrorResponse shape in
// original_source/src/handlers/prove.rs.
type Error struct {
	Message string
	Hint    string
}

func (e *Error) Error() string { return e.Message }

func newError(message, hint string) *Error {
	return &Error{Message: message, Hint: hint}
}

// Request is the decoded prove-request input payload. Exactly one of
// Text, Fields, or Raw is set, selected by the model's InputKind.
type Request struct {
	Text   *string
	Fields map[string]string
	Raw    []int32
}

// Vocabularies bundles whichever vocab a model's input kind needs. Only
// the field matching the model's InputKind need be populated.
type Vocabularies struct {
	TfIdf      TfIdfVocab
	TokenIndex TfIdfVocab
	OneHot     OneHotVocab
}

// Encode dispatches on d.InputKind and returns the fixed-dimension int32
// vector the model's arithmetization expects.
func Encode(d *modelpkg.ModelDescriptor, req Request, vocab Vocabularies) ([]int32, error) {
	switch d.InputKind {
	case modelpkg.InputText:
		return encodeText(d, req, vocab)
	case modelpkg.InputStructured:
		return encodeStructured(d, req, vocab)
	case modelpkg.InputRaw:
		return encodeRaw(d, req)
	default:
		return nil, newError("unrecognized input_kind", "")
	}
}

func encodeText(d *modelpkg.ModelDescriptor, req Request, vocab Vocabularies) ([]int32, error) {
	if req.Text == nil {
		return nil, newError("missing text input", "this model expects {\"input\":{\"text\":\"...\"}}")
	}
	text := *req.Text
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, newError(
			fmt.Sprintf("text exceeds maximum length of %d characters", MaxTextLength),
			"shorten the input text",
		)
	}

	v := vocab.TfIdf
	if v == nil {
		v = vocab.TokenIndex
	}
	if v == nil {
		return nil, newError("no vocabulary loaded for this model", "contact the service operator")
	}
	return buildTfIdfVector(text, v, d.InputDim), nil
}

// buildTfIdfVector tokenizes text, lowercases each token, and for every
// token present in vocab accumulates its scaled IDF weight at the
// vocabulary index. Tokens not in vocab are silently ignored. This is the
// exact algorithm in original_source/src/input.rs's build_tfidf_vector;
// the same function also serves token-index vocabularies, whose IDF
// weight is always 1.
func buildTfIdfVector(text string, vocab TfIdfVocab, dim int) []int32 {
	out := make([]int32, dim)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		entry, ok := vocab[tok]
		if !ok || entry.Index < 0 || entry.Index >= dim {
			continue
		}
		out[entry.Index] += entry.IDF
	}
	return out
}

func encodeStructured(d *modelpkg.ModelDescriptor, req Request, vocab Vocabularies) ([]int32, error) {
	if req.Fields == nil {
		return nil, newError("missing fields input", "this model expects {\"input\":{\"fields\":{...}}}")
	}
	if vocab.OneHot == nil {
		return nil, newError("no vocabulary loaded for this model", "contact the service operator")
	}

	for _, schema := range d.FieldSchemas {
		val, ok := req.Fields[schema.Name]
		if !ok {
			continue
		}
		n, err := parseInt(val)
		if err != nil {
			return nil, newError(
				fmt.Sprintf("field %q value %q is not an integer", schema.Name, val),
				"send a plain integer for this field",
			)
		}
		if n < schema.Min || n > schema.Max {
			return nil, newError(
				fmt.Sprintf("field %q value %d out of range [%d, %d]", schema.Name, n, schema.Min, schema.Max),
				"adjust the field value to within the documented range",
			)
		}
	}

	return buildOneHotVector(req.Fields, d.FieldSchemas, vocab.OneHot, d.InputDim), nil
}

// buildOneHotVector sets index 1 for every "{field_name}_{value}" feature
// key present in vocab, mirroring
// original_source/src/input.rs::build_onehot_vector.
func buildOneHotVector(fields map[string]string, schemas []modelpkg.FieldSchema, vocab OneHotVocab, dim int) []int32 {
	out := make([]int32, dim)
	for _, schema := range schemas {
		val, ok := fields[schema.Name]
		if !ok {
			continue
		}
		key := schema.Name + "_" + val
		if idx, ok := vocab[key]; ok && idx >= 0 && idx < dim {
			out[idx] = 1
		}
	}
	return out
}

func encodeRaw(d *modelpkg.ModelDescriptor, req Request) ([]int32, error) {
	if req.Raw == nil {
		return nil, newError("missing raw input", "this model expects {\"input\":{\"raw\":[...]}}")
	}
	if len(req.Raw) != d.InputDim {
		return nil, newError(
			fmt.Sprintf("raw input length %d does not match expected dimension %d", len(req.Raw), d.InputDim),
			"adjust the input length to match input_dim",
		)
	}
	out := make([]int32, len(req.Raw))
	copy(out, req.Raw)
	return out, nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
