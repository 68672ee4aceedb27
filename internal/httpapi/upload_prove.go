package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zkreceipt/receipt-service/internal/apierr"
	"github.com/zkreceipt/receipt-service/internal/input"
	"github.com/zkreceipt/receipt-service/internal/prove"
)

// handleUploadAndProve implements spec.md §4.6's "Upload-and-prove"
// operation: a single multipart request that admits a model artifact,
// preprocesses it synchronously, and submits a proof against it in one
// round trip, composing the §4.3 synchronous population path with
// submit_proof. Grounded on original_source's unified prove-model
// endpoint, which exists for callers that don't want to poll
// GET /models for a "ready" status before proving.
func (s *Server) handleUploadAndProve(w http.ResponseWriter, r *http.Request) {
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
	webhookURL := r.FormValue("webhook_url")

	rawField := r.FormValue("input_raw")
	if rawField == "" {
		writeError(w, apierr.BadRequestf("missing input_raw", "the \"input_raw\" form field is required and must be a JSON array of integers"))
		return
	}
	var raw []int32
	if err := json.Unmarshal([]byte(rawField), &raw); err != nil {
		writeError(w, apierr.BadRequestf("invalid input_raw", "the \"input_raw\" form field must be a JSON array of integers"))
		return
	}

	descriptor, err := s.admitUploadedModelSync(r.Context(), name, inputDim, labels, traceLength, artifact)
	if err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.Pipeline.SubmitProof(r.Context(), prove.Request{
		ModelID:    descriptor.ID,
		Input:      input.Request{Raw: raw},
		WebhookURL: webhookURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toReceiptResponse(receipt))
}
