package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/zkreceipt/receipt-service/internal/apierr"
)

// errorResponse is the JSON body returned for every non-2xx response,
// mirroring original_source/src/handlers' ErrorResponse{error, hint}.
type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// statusFor maps an apierr.Kind to its HTTP status code, the one place
// in this repo where an error kind is translated into a wire-level
// concept — every other package stays free of net/http.
func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.BadRequest:
		return http.StatusBadRequest
	case apierr.NotFound:
		return http.StatusNotFound
	case apierr.Unavailable:
		return http.StatusServiceUnavailable
	case apierr.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apierr.Unprocessable:
		return http.StatusUnprocessableEntity
	case apierr.TooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error response. A *apierr.Error is
// mapped by Kind; any other error is treated as Internal and its raw
// message is not exposed to the caller, per spec.md §7.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		writeJSON(w, statusFor(apiErr.Kind), errorResponse{Error: apiErr.Message, Hint: apiErr.Hint})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
