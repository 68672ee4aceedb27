package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/zkreceipt/receipt-service/internal/apierr"
	"github.com/zkreceipt/receipt-service/internal/input"
	"github.com/zkreceipt/receipt-service/internal/modelpkg"
	"github.com/zkreceipt/receipt-service/internal/prove"
	"github.com/zkreceipt/receipt-service/internal/receipts"
)

// modelListEntry is the wire projection of a ModelDescriptor for
// GET /models: enough for a caller to pick a model and shape a request,
// without exposing the cached digest or on-disk artifact path.
type modelListEntry struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	InputKind   modelpkg.InputKind      `json:"input_kind"`
	InputDim    int                     `json:"input_dim"`
	Labels      []string                `json:"labels"`
	FieldSchemas []modelpkg.FieldSchema `json:"field_schemas,omitempty"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	descriptors := s.Registry.List()
	out := make([]modelListEntry, len(descriptors))
	for i, d := range descriptors {
		out[i] = modelListEntry{
			ID:           d.ID,
			Name:         d.Name,
			Description:  d.Description,
			InputKind:    d.InputKind,
			InputDim:     d.InputDim,
			Labels:       d.Labels,
			FieldSchemas: d.FieldSchemas,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// proveRequestBody is the wire shape of a submit-proof request, per
// spec.md §6: `{model_id, input: {text? | fields? | raw?}, webhook_url?}`.
type proveRequestBody struct {
	ModelID    string            `json:"model_id"`
	Input      proveInputBody    `json:"input"`
	WebhookURL string            `json:"webhook_url,omitempty"`
}

type proveInputBody struct {
	Text   *string           `json:"text,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Raw    []int32           `json:"raw,omitempty"`
}

func (b proveRequestBody) toRequest() prove.Request {
	return prove.Request{
		ModelID: b.ModelID,
		Input: input.Request{
			Text:   b.Input.Text,
			Fields: b.Input.Fields,
			Raw:    b.Input.Raw,
		},
		WebhookURL: b.WebhookURL,
	}
}

// receiptResponse is the wire shape of a receipt snapshot returned from
// submit-proof, batch-submit, and get-receipt.
type receiptResponse struct {
	ID           string            `json:"id"`
	ModelID      string            `json:"model_id"`
	ModelName    string            `json:"model_name"`
	Status       receipts.Status   `json:"status"`
	CreatedAt    int64             `json:"created_at"`
	CompletedAt  *int64            `json:"completed_at,omitempty"`
	ModelHash    string            `json:"model_hash"`
	InputHash    string            `json:"input_hash"`
	OutputHash   string            `json:"output_hash"`
	Output       *receipts.Output  `json:"output,omitempty"`
	ProofHash    string            `json:"proof_hash,omitempty"`
	ProofSize    int               `json:"proof_size,omitempty"`
	ProveTimeMs  int64             `json:"prove_time_ms,omitempty"`
	VerifyTimeMs int64             `json:"verify_time_ms,omitempty"`
	Error        string            `json:"error,omitempty"`
	ProofString  string            `json:"proof_string,omitempty"`
}

func toReceiptResponse(r *receipts.Receipt) receiptResponse {
	label := ""
	if r.Output != nil {
		label = r.Output.Label
	}
	return receiptResponse{
		ID:           r.ID,
		ModelID:      r.ModelID,
		ModelName:    r.ModelName,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		CompletedAt:  r.CompletedAt,
		ModelHash:    r.ModelHash,
		InputHash:    r.InputHash,
		OutputHash:   r.OutputHash,
		Output:       r.Output,
		ProofHash:    r.ProofHash,
		ProofSize:    r.ProofSize,
		ProveTimeMs:  r.ProveTimeMs,
		VerifyTimeMs: r.VerifyTimeMs,
		Error:        r.Error,
		ProofString:  fmt.Sprintf("zkreceipt:%s:%s:%s", r.ID, label, r.Status),
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var body proveRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apierr.BadRequestf("invalid JSON body", "check the request shape against the documented schema"))
		return
	}

	receipt, err := s.Pipeline.SubmitProof(r.Context(), body.toRequest())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toReceiptResponse(receipt))
}

type batchRequestBody struct {
	Requests []proveRequestBody `json:"requests"`
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var body batchRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apierr.BadRequestf("invalid JSON body", "check the request shape against the documented schema"))
		return
	}

	reqs := make([]prove.Request, len(body.Requests))
	for i, rb := range body.Requests {
		reqs[i] = rb.toRequest()
	}

	receiptList, err := s.Pipeline.SubmitBatch(r.Context(), reqs)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]receiptResponse, len(receiptList))
	for i, rc := range receiptList {
		out[i] = toReceiptResponse(rc)
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	receipt, err := s.Store.Get(id)
	if err != nil {
		writeError(w, apierr.NotFoundf(fmt.Sprintf("unknown receipt_id %q", id), ""))
		return
	}

	if r.URL.Query().Get("format") == "jsonld" {
		writeJSON(w, http.StatusOK, toJSONLD(receipt, s.BaseURL))
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

// jsonLD is a schema.org DigitalDocument projection of a receipt, a
// supplemented feature from original_source's ?format=jsonld branch —
// useful for third-party indexing, kept because no Non-goal excludes it.
type jsonLD struct {
	Context     string `json:"@context"`
	Type        string `json:"@type"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	DateCreated int64  `json:"dateCreated"`
	About       string `json:"about"`
}

func toJSONLD(r *receipts.Receipt, baseURL string) jsonLD {
	return jsonLD{
		Context:     "https://schema.org",
		Type:        "DigitalDocument",
		Identifier:  r.ID,
		Name:        fmt.Sprintf("Inference receipt for %s", r.ModelName),
		URL:         fmt.Sprintf("%s/receipt/%s", baseURL, r.ID),
		DateCreated: r.CreatedAt,
		About:       string(r.Status),
	}
}

type verifyRequestBody struct {
	ReceiptID string `json:"receipt_id"`
}

type verifyResponseBody struct {
	Valid     bool            `json:"valid"`
	ReceiptID string          `json:"receipt_id"`
	Status    receipts.Status `json:"status"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apierr.BadRequestf("invalid JSON body", ""))
		return
	}

	receipt, err := s.Store.Get(body.ReceiptID)
	if err != nil {
		writeError(w, apierr.NotFoundf(fmt.Sprintf("unknown receipt_id %q", body.ReceiptID), ""))
		return
	}

	writeJSON(w, http.StatusOK, verifyResponseBody{
		Valid:     receipt.Status == receipts.StatusVerified,
		ReceiptID: receipt.ID,
		Status:    receipt.Status,
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	summaries, err := s.Store.Recent(limit)
	if err != nil {
		writeError(w, apierr.Internalf("failed to load recent receipts", ""))
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Store.Stats()
	if err != nil {
		writeError(w, apierr.Internalf("failed to load stats", ""))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// maxUploadBytes bounds the multipart body itself (artifact plus form
// fields); the artifact-only 5 MiB cap from spec.md §4.6 is enforced
// separately once the artifact part is read.
const maxUploadBytes = 8 << 20

// maxArtifactBytes is the artifact-only cap spec.md §4.6 enforces on
// both the async upload and the synchronous upload-and-prove paths.
const maxArtifactBytes = 5 << 20

// readArtifact reads and validates an uploaded artifact against the
// size cap and the minimal protobuf-tag sanity check spec.md §4.6
// requires of every admitted artifact.
func readArtifact(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, apierr.BadRequestf(fmt.Sprintf("missing %s file part", field), fmt.Sprintf("multipart field %q is required", field))
	}
	defer file.Close()

	artifact, err := io.ReadAll(io.LimitReader(file, maxArtifactBytes+1))
	if err != nil {
		return nil, apierr.Internalf("failed to read artifact", "")
	}
	if len(artifact) > maxArtifactBytes {
		return nil, apierr.TooLargef("artifact exceeds 5 MiB", "")
	}
	if len(artifact) == 0 || artifact[0] != 0x08 {
		return nil, apierr.Unprocessablef("artifact failed sanity check", "artifact bytes must begin with the protobuf tag 0x08")
	}
	return artifact, nil
}

type uploadResponseBody struct {
	ModelID string `json:"model_id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

func (s *Server) handleUploadModel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apierr.TooLargef("upload exceeds the maximum request size", "keep artifacts under 5 MiB"))
		return
	}

	artifact, err := readArtifact(r, "artifact")
	if err != nil {
		writeError(w, err)
		return
	}

	name := r.FormValue("name")
	inputDim, _ := strconv.Atoi(r.FormValue("input_dim"))
	labels := r.Form["labels[]"]
	traceLength, _ := strconv.Atoi(r.FormValue("trace_length"))

	descriptor, status, err := s.admitUploadedModel(r.Context(), name, inputDim, labels, traceLength, artifact)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponseBody{
		ModelID: descriptor.ID,
		Name:    descriptor.Name,
		Status:  status,
	})
}

type healthResponseBody struct {
	ModelsLoaded int    `json:"models_loaded"`
	ModelsTotal  int    `json:"models_total"`
	Ready        bool   `json:"ready"`
	ProofSystem  string `json:"proof_system"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total := s.Registry.Len()
	loaded := s.Cache.Len()
	writeJSON(w, http.StatusOK, healthResponseBody{
		ModelsLoaded: loaded,
		ModelsTotal:  total,
		Ready:        loaded == total,
		ProofSystem:  "refsnark",
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metricsExporter.ServeHTTP(w, r)
}
