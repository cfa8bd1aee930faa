// Package connectors defines the contract every source integration satisfies
// and the shared failure taxonomy the orchestrator acts on. Source-specific
// behavior lives in the per-source subpackages; nothing above this interface
// branches on a concrete source type.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RawDocument is one unit fetched from a source, before normalization. The
// ID must be source-qualified and stable across fetches of the same logical
// document. Permissions is the source-native access side channel; nil means
// the connector could not determine access, which downstream treats as
// private.
type RawDocument struct {
	ID          string
	Title       string
	Link        string
	Content     string
	UpdatedAt   time.Time
	Metadata    map[string]string
	Tags        map[string]string
	Permissions *PermissionSet
}

// PermissionSet is the normalized shape of source-native permission data.
// Complete=false marks data the connector knows is partial (e.g. a members
// listing that failed mid-page); the access propagator fails closed on it.
type PermissionSet struct {
	IsPublic   bool
	Principals []string
	Groups     []string
	Complete   bool
}

// Batch is one page of documents plus the cursor to resume from. Polling
// again with NextCursor must never re-deliver documents already returned
// before this batch; re-delivering the batch itself is acceptable
// (at-least-once), since upserts downstream are idempotent on document ID.
type Batch struct {
	Documents  []RawDocument
	NextCursor string
	HasMore    bool
}

// Connector fetches documents from one configured source. Poll is resumable:
// an empty cursor starts from the beginning, otherwise the cursor is the
// NextCursor of a previous call.
type Connector interface {
	Type() string
	Poll(ctx context.Context, cursor string) (*Batch, error)
}

// Failure taxonomy. Connectors wrap source errors into exactly one of these
// so the orchestrator can pick retry behavior without knowing the source.
var (
	// ErrSourceUnavailable marks transient failures: network errors,
	// 5xx responses, timeouts. Retried with backoff.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAuthExpired marks credential failures. Not retryable until the
	// credential is refreshed externally.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrRateLimited marks throttling by the source. Retried after the
	// hinted delay.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitError carries the source's backoff hint alongside ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Retryable reports whether the orchestrator should retry the current batch.
func Retryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrRateLimited)
}

// RetryAfterHint extracts the source-provided backoff hint, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}
