// Package embedding maps text to dense vectors under named model versions
// and tracks which model version is live for query-time search.
package embedding

import (
	"context"
	"errors"
)

// ErrServiceUnavailable marks transient embedding backend failures. Callers
// retry with backoff; it never aborts already-written work.
var ErrServiceUnavailable = errors.New("embedding service unavailable")

// Provider computes embeddings for one backend.
type Provider interface {
	Name() string
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}
