package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/zkreceipt/receipt-service/internal/input"
	"github.com/zkreceipt/receipt-service/internal/modelpkg"
	"github.com/zkreceipt/receipt-service/internal/model/refruntime"
	"github.com/zkreceipt/receipt-service/internal/preprocess"
	"github.com/zkreceipt/receipt-service/internal/prove"
	"github.com/zkreceipt/receipt-service/internal/prove/refsnark"
	"github.com/zkreceipt/receipt-service/internal/ratelimit"
	"github.com/zkreceipt/receipt-service/internal/receipts"
)

// refruntimeArtifact builds a minimal artifact refruntime.Runtime
// accepts: the 0x08 sanity byte followed by a one-byte class count.
func refruntimeArtifact(numClasses byte) []byte {
	return []byte{refruntime.ArtifactMagic, numClasses}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := modelpkg.NewRegistry()
	cache := preprocess.NewCache()
	store, err := receipts.Open(filepath.Join(t.TempDir(), "receipts.db"))
	if err != nil {
		t.Fatalf("receipts.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rt := refruntime.New()
	sys := refsnark.NewAdapter()
	pipeline := prove.NewPipeline(reg, cache, store, rt, sys, input.Vocabularies{})

	s := NewServer(&Server{
		Registry:          reg,
		Cache:             cache,
		Store:             store,
		Pipeline:          pipeline,
		UploadedModelsDir: t.TempDir(),
		Limiters: Limiters{
			SubmitProof: ratelimit.New(ratelimit.Config{RequestsPerMinute: 1e6, Burst: 1e6}),
			Batch:       ratelimit.New(ratelimit.Config{RequestsPerMinute: 1e6, Burst: 1e6}),
			Upload:      ratelimit.New(ratelimit.Config{RequestsPerMinute: 1e6, Burst: 1e6}),
		},
	})
	return s
}

func uploadAndProveRequest(t *testing.T, fields map[string]string, artifact []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s): %v", k, err)
		}
	}
	fw, err := w.CreateFormFile("artifact", "model.bin")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(artifact); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/prove/model", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHandleUploadAndProve_HappyPath(t *testing.T) {
	s := newTestServer(t)

	req := uploadAndProveRequest(t, map[string]string{
		"name":      "quick-check",
		"input_dim": "3",
		"input_raw": "[1,2,3]",
	}, refruntimeArtifact(2))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var body receiptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
	if body.ModelID == "" {
		t.Fatal("expected a model_id to be assigned")
	}

	// The model must now be registered and preprocessed synchronously —
	// no polling required before the proof request above was accepted.
	if !s.Registry.Has(body.ModelID) {
		t.Fatalf("model %q was not registered", body.ModelID)
	}
	if !s.Cache.Contains(body.ModelID) {
		t.Fatalf("model %q was not preprocessed synchronously", body.ModelID)
	}
}

func TestHandleUploadAndProve_DefaultsLabelsWhenOmitted(t *testing.T) {
	s := newTestServer(t)

	req := uploadAndProveRequest(t, map[string]string{
		"name":      "no-labels",
		"input_dim": "2",
		"input_raw": "[5,6]",
	}, refruntimeArtifact(2))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var body receiptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	d := s.Registry.Get(body.ModelID)
	if d == nil {
		t.Fatal("expected the model to be registered")
	}
	want := []string{"class_0", "class_1"}
	if len(d.Labels) != len(want) || d.Labels[0] != want[0] || d.Labels[1] != want[1] {
		t.Fatalf("labels = %v, want %v", d.Labels, want)
	}
}

func TestHandleUploadAndProve_RejectsOversizedArtifact(t *testing.T) {
	s := newTestServer(t)

	oversized := make([]byte, maxArtifactBytes+1)
	oversized[0] = 0x08
	req := uploadAndProveRequest(t, map[string]string{
		"name":      "too-big",
		"input_dim": "2",
		"input_raw": "[1,2]",
	}, oversized)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code == http.StatusAccepted {
		t.Fatalf("expected oversized artifact to be rejected, got 202")
	}
}
