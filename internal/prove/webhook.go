package prove

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zkreceipt/receipt-service/internal/receipts"
)

// webhookRetryDelay is the backoff before the single retry attempt, per
// spec.md §4.6: "sleep a short backoff and retry exactly once". A var,
// not a const, so tests can shorten it instead of waiting out a real
// multi-second backoff.
var webhookRetryDelay = 5 * time.Second

// webhookPayload is the POST body delivered to a caller's webhook: the
// final receipt in its full (non-summary) shape, matching S4's
// expectation of id/hashes/timings/status in the delivered body.
type webhookPayload struct {
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
}

func toWebhookPayload(r *receipts.Receipt) webhookPayload {
	return webhookPayload{
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
	}
}

// webhookSender abstracts the single POST call so tests can substitute a
// fake transport without binding this package to a live HTTP server.
type webhookSender interface {
	Post(ctx context.Context, url string, body []byte) error
}

type defaultWebhookSender struct{}

func (defaultWebhookSender) Post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return httpStatusError(resp.StatusCode)
	}
	return nil
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return "webhook delivery received status " + itoaSmall(int(e))
}

func itoaSmall(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// fireWebhook posts the receipt once; on failure it sleeps
// webhookRetryDelay and retries exactly once, logging both attempts,
// per spec.md §4.6's final bullet.
func fireWebhook(ctx context.Context, sender webhookSender, url string, r *receipts.Receipt) {
	body, err := json.Marshal(toWebhookPayload(r))
	if err != nil {
		logger.Error("failed to encode webhook payload", "receipt_id", r.ID, "error", err)
		return
	}

	if err := sender.Post(ctx, url, body); err == nil {
		logger.Info("webhook delivered", "receipt_id", r.ID, "url", url, "attempt", 1)
		return
	} else {
		logger.Warn("webhook delivery failed, will retry once", "receipt_id", r.ID, "url", url, "attempt", 1, "error", err)
	}

	select {
	case <-time.After(webhookRetryDelay):
	case <-ctx.Done():
		return
	}

	if err := sender.Post(ctx, url, body); err != nil {
		logger.Error("webhook delivery failed on retry", "receipt_id", r.ID, "url", url, "attempt", 2, "error", err)
		return
	}
	logger.Info("webhook delivered", "receipt_id", r.ID, "url", url, "attempt", 2)
}
