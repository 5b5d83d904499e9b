package domain

import "errors"

var (
	// ErrNoValidCandidates signals that catalog normalization produced nothing usable.
	ErrNoValidCandidates = errors.New("no valid candidates after normalization")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidInput signals a malformed recommendation request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCatalogUnavailable signals that the catalog source could not be reached.
	ErrCatalogUnavailable = errors.New("catalog source unavailable")
)
