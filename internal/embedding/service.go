package embedding

import (
	"context"
	"fmt"
	"time"
)

const (
	// API providers cap batch sizes; 100 stays under every backend we use.
	batchSize = 100

	defaultTimeout = 30 * time.Second
)

// Service batches and bounds embedding calls to a provider.
type Service struct {
	provider Provider
	timeout  time.Duration
}

func NewService(provider Provider, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{provider: provider, timeout: timeout}
}

// Embed computes vectors for texts under the named model, splitting into
// provider-sized batches. Each batch call carries a bounded timeout; expiry
// surfaces as ErrServiceUnavailable.
func (s *Service) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		vecs, err := s.provider.Embed(batchCtx, model, texts[i:end])
		// Capture the deadline state before cancel; afterwards the context
		// always reports canceled and every error would look like a timeout.
		timedOut := batchCtx.Err() != nil && ctx.Err() == nil
		cancel()
		if err != nil {
			if timedOut {
				return nil, fmt.Errorf("embed batch %d timed out: %w", i/batchSize, ErrServiceUnavailable)
			}
			return nil, fmt.Errorf("embed batch %d: %w", i/batchSize, err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// EmbedSingle embeds one text, used for queries.
func (s *Service) EmbedSingle(ctx context.Context, model, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned: %w", ErrServiceUnavailable)
	}
	return vecs[0], nil
}
