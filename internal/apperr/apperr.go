// Package apperr defines the sentinel error kinds shared across the
// context-assembly pipeline. Internal packages return these directly;
// only internal/httpapi maps them to transport-specific status codes.
package apperr

import "errors"

var (
	// ErrValidation marks a caller-supplied request as malformed (missing
	// user_id/message, empty content, etc).
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup that found nothing.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks a request against a resource owned by another user.
	ErrForbidden = errors.New("forbidden")

	// ErrUpstream marks a non-200 or otherwise failed call to the
	// upstream chat-completion endpoint.
	ErrUpstream = errors.New("upstream error")

	// ErrEmbedding marks a non-200 or malformed embedding response.
	// Retrieval degrades to keyword-only; the turn continues.
	ErrEmbedding = errors.New("embedding error")

	// ErrVectorStoreUnavailable marks a gateway with no functioning ANN
	// backend (e.g. no path configured at init). Vector ops no-op.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")

	// ErrAtomicity marks a dual-write whose vector half failed after the
	// SQL half committed; the SQL row has been rolled back by the time
	// this error is returned.
	ErrAtomicity = errors.New("atomic dual-write failed")

	// ErrFormat marks a fact-extractor response that could not be parsed
	// as the expected JSON shape.
	ErrFormat = errors.New("format error")
)
