package pipeline

import "errors"

// Sentinel errors for pipeline operations. Per-candidate errors
// (ErrContentTooShort, ErrNoTitle) cause that candidate to be skipped;
// only ErrFetchFailed on the source URL itself propagates to the job queue.
var (
	// ErrFetchFailed indicates the source page could not be retrieved.
	// This is the only error the orchestrator propagates to its caller.
	ErrFetchFailed = errors.New("source fetch failed")

	// ErrContentTooShort indicates extraction produced less than the
	// minimum acceptable content length for one candidate.
	ErrContentTooShort = errors.New("extracted content too short")

	// ErrNoTitle indicates no title candidate was found for one candidate.
	ErrNoTitle = errors.New("no title found")

	// ErrClassification indicates the AI classification call failed or
	// returned unparseable output. Always degraded to the heuristic
	// result, never fatal.
	ErrClassification = errors.New("page classification failed")

	// ErrNormalization indicates the AI rewrite failed after all retries.
	// Always degraded to the deterministic fallback, never fatal.
	ErrNormalization = errors.New("content normalization failed")
)
