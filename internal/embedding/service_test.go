package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	batches [][]string
	err     error
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.batches = append(p.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

type blockingProvider struct{}

func (blockingProvider) Name() string { return "blocking" }

func (blockingProvider) Embed(ctx context.Context, _ string, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEmbedSplitsIntoProviderBatches(t *testing.T) {
	p := &recordingProvider{}
	svc := NewService(p, time.Second)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "text"
	}

	vecs, err := svc.Embed(context.Background(), "m1", texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 250)

	require.Len(t, p.batches, 3)
	assert.Len(t, p.batches[0], 100)
	assert.Len(t, p.batches[1], 100)
	assert.Len(t, p.batches[2], 50)
}

func TestEmbedEmptyInput(t *testing.T) {
	p := &recordingProvider{}
	svc := NewService(p, time.Second)

	vecs, err := svc.Embed(context.Background(), "m1", nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Empty(t, p.batches)
}

func TestEmbedTimeoutIsServiceUnavailable(t *testing.T) {
	svc := NewService(blockingProvider{}, 10*time.Millisecond)

	_, err := svc.Embed(context.Background(), "m1", []string{"text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestEmbedProviderErrorPassesThrough(t *testing.T) {
	boom := errors.New("quota exceeded")
	svc := NewService(&recordingProvider{err: boom}, time.Second)

	_, err := svc.Embed(context.Background(), "m1", []string{"text"})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
}

func TestEmbedSingle(t *testing.T) {
	p := &recordingProvider{}
	svc := NewService(p, time.Second)

	vec, err := svc.EmbedSingle(context.Background(), "m1", "query text")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}
