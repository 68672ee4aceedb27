// Package apierr defines the typed error kinds the HTTP layer maps onto
// status codes, carrying both a message and an actionable hint for the
// caller, following the ErrorResponse shape used throughout
// original_source/src/handlers.
package apierr

// Kind classifies an Error for HTTP status mapping.
type Kind int

const (
	// Internal is an unexpected failure not attributable to the caller.
	Internal Kind = iota
	// BadRequest is a malformed or semantically invalid request body.
	BadRequest
	// NotFound is a reference to an unknown model or receipt.
	NotFound
	// Unavailable is a request a known model cannot currently serve
	// (e.g. preprocessing not yet complete).
	Unavailable
	// PayloadTooLarge is an upload exceeding the configured size limit.
	PayloadTooLarge
	// Unprocessable is a well-formed request whose content fails a
	// domain validation rule (e.g. an uploaded artifact that fails its
	// sanity check).
	Unprocessable
	// TooManyRequests is a rate-limited request.
	TooManyRequests
)

// Error is the typed error carried from a package operation to the HTTP
// layer, which maps Kind to a status code and renders Message/Hint.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
}

func (e *Error) Error() string { return e.Message }

// New constructs an Error of the given kind.
func New(kind Kind, message, hint string) *Error {
	return &Error{Kind: kind, Message: message, Hint: hint}
}

func BadRequestf(message, hint string) *Error      { return New(BadRequest, message, hint) }
func NotFoundf(message, hint string) *Error        { return New(NotFound, message, hint) }
func Unavailablef(message, hint string) *Error     { return New(Unavailable, message, hint) }
func TooLargef(message, hint string) *Error        { return New(PayloadTooLarge, message, hint) }
func Unprocessablef(message, hint string) *Error   { return New(Unprocessable, message, hint) }
func Internalf(message, hint string) *Error        { return New(Internal, message, hint) }
func TooManyRequestsf(message, hint string) *Error { return New(TooManyRequests, message, hint) }
