package domain

import "errors"

// Sentinel errors shared across packages.
var (
	// ErrUnknownDocType means the document type is not supported.
	ErrUnknownDocType = errors.New("unknown document type")

	// ErrModelArtifact is a fatal configuration error: a scoring model
	// artifact is missing for a document type that does not allow the
	// heuristic fallback. The submission is aborted, never approved.
	ErrModelArtifact = errors.New("scoring model artifact missing")

	// ErrAdvisoryUnavailable means the advisory call failed or timed
	// out. Non-fatal: the policy engine escalates with a system-error
	// tag instead of approving.
	ErrAdvisoryUnavailable = errors.New("advisory unavailable")

	// ErrHistoryConflict is a concurrent-write conflict on one entity's
	// history. Retryable; an update must not be silently dropped.
	ErrHistoryConflict = errors.New("entity history write conflict")
)
