// Package receipts implements the dual-tier receipt store: a hot
// in-memory cache backed by a durable SQLite table, mirroring
// original_source/src/receipt.rs's ReceiptStore.
package receipts

// Status is the lifecycle state of a receipt.
type Status string

const (
	StatusProving  Status = "proving"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

func (s Status) String() string { return string(s) }

// ParseStatus parses a stored status string, defaulting to StatusFailed
// for anything unrecognized (a corrupt or future-version row should read
// back as failed, never silently as proving or verified).
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusProving, StatusVerified, StatusFailed:
		return Status(s)
	default:
		return StatusFailed
	}
}

// Output captures the model's raw output vector plus its derived
// classification, matching original_source::InferenceOutput.
type Output struct {
	RawOutput      []int32 `json:"raw_output"`
	PredictedClass int     `json:"predicted_class"`
	Label          string  `json:"label"`
	Confidence     float64 `json:"confidence"`
}

// Receipt is the full record of one prove request: its commitments, its
// lifecycle status, and (once proving completes) its proof metadata.
type Receipt struct {
	ID          string
	ModelID     string
	ModelName   string
	Status      Status
	CreatedAt   int64 // unix seconds
	CompletedAt *int64

	ModelHash  string
	InputHash  string
	OutputHash string
	Output     *Output

	ProofHash    string
	ProofSize    int
	ProveTimeMs  int64
	VerifyTimeMs int64

	Error string
}

// Summary is the trimmed projection returned by list/recent endpoints —
// identity, status, timestamps, label, confidence and timings; it omits
// the output vector, the hashes, the proof metadata and the error,
// matching the field set
// original_source/src/handlers/receipts_list.rs selects.
type Summary struct {
	ID           string  `json:"id"`
	ModelID      string  `json:"model_id"`
	ModelName    string  `json:"model_name"`
	Status       Status  `json:"status"`
	CreatedAt    int64   `json:"created_at"`
	CompletedAt  *int64  `json:"completed_at,omitempty"`
	Label        string  `json:"label,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	ProveTimeMs  int64   `json:"prove_time_ms,omitempty"`
	VerifyTimeMs int64   `json:"verify_time_ms,omitempty"`
}

// ToSummary projects a Receipt into its list-view Summary.
func (r *Receipt) ToSummary() Summary {
	s := Summary{
		ID:           r.ID,
		ModelID:      r.ModelID,
		ModelName:    r.ModelName,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		CompletedAt:  r.CompletedAt,
		ProveTimeMs:  r.ProveTimeMs,
		VerifyTimeMs: r.VerifyTimeMs,
	}
	if r.Output != nil {
		s.Label = r.Output.Label
		s.Confidence = r.Output.Confidence
	}
	return s
}

// ModelStats is the per-model breakdown within Stats: how many receipts
// exist for a model and its average prove time over completed
// (verified or failed) receipts.
type ModelStats struct {
	ModelID        string  `json:"model_id"`
	Count          int64   `json:"count"`
	AvgProveTimeMs float64 `json:"avg_prove_time_ms"`
}

// Stats is the aggregate counter set returned by the stats endpoint.
type Stats struct {
	Total    int64 `json:"total"`
	Proving  int64 `json:"proving"`
	Verified int64 `json:"verified"`
	Failed   int64 `json:"failed"`

	AvgProveTimeMs  float64 `json:"avg_prove_time_ms"`
	AvgVerifyTimeMs float64 `json:"avg_verify_time_ms"`

	ByModel []ModelStats `json:"by_model"`
}
