package receipts

import "testing"

func TestToSummary_CarriesConfidenceAndTimings(t *testing.T) {
	completed := int64(500)
	r := Receipt{
		ID:           "r1",
		ModelID:      "sentiment",
		ModelName:    "Sentiment Classifier",
		Status:       StatusVerified,
		CreatedAt:    100,
		CompletedAt:  &completed,
		ProveTimeMs:  250,
		VerifyTimeMs: 40,
		Output: &Output{
			RawOutput:      []int32{1, 2},
			PredictedClass: 1,
			Label:          "positive",
			Confidence:     0.87,
		},
	}

	s := r.ToSummary()
	if s.Label != "positive" {
		t.Fatalf("label = %q, want %q", s.Label, "positive")
	}
	if s.Confidence != 0.87 {
		t.Fatalf("confidence = %v, want 0.87", s.Confidence)
	}
	if s.ProveTimeMs != 250 || s.VerifyTimeMs != 40 {
		t.Fatalf("timings = %d/%d, want 250/40", s.ProveTimeMs, s.VerifyTimeMs)
	}
}

func TestToSummary_NoOutputYieldsZeroConfidence(t *testing.T) {
	r := Receipt{ID: "r2", Status: StatusProving, CreatedAt: 100}
	s := r.ToSummary()
	if s.Confidence != 0 || s.Label != "" {
		t.Fatalf("expected zero-value confidence/label for a receipt without output, got %+v", s)
	}
}
