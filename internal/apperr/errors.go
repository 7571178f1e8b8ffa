package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrSourceUnavailable signals that the active backend cannot serve
	// requests (no backup roots, remote disabled, missing decoder).
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrEmbedderUnavailable signals that the embedding producer failed or
	// is unreachable. Callers treat it as retryable.
	ErrEmbedderUnavailable = errors.New("embedding producer unavailable")
)
