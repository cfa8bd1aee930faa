package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/models"
)

// ErrNoPrimary is returned before any embedding model has been configured.
var ErrNoPrimary = errors.New("no primary embedding model configured")

// Snapshot is a consistent view of the live model pointers. Queries read
// exactly one snapshot for their whole execution, so a promotion landing
// mid-query can never show them half of each state.
type Snapshot struct {
	Primary   *models.EmbeddingModel
	Secondary *models.EmbeddingModel
}

// Registry caches the primary/secondary model pointer behind an atomic
// reference. Readers never lock and never block on migration progress; the
// snapshot is refreshed on an interval and explicitly after manager
// transitions.
type Registry struct {
	store    indexstore.ModelStore
	current  atomic.Pointer[Snapshot]
	interval time.Duration
}

func NewRegistry(store indexstore.ModelStore, refreshInterval time.Duration) *Registry {
	if refreshInterval <= 0 {
		refreshInterval = 15 * time.Second
	}
	return &Registry{store: store, interval: refreshInterval}
}

// Refresh reloads the snapshot from the store and swaps it in one step.
func (r *Registry) Refresh(ctx context.Context) error {
	primary, err := r.store.GetModelByStatus(ctx, models.ModelStatusPrimary)
	if err != nil && !errors.Is(err, indexstore.ErrNotFound) {
		return fmt.Errorf("load primary model: %w", err)
	}

	secondary, err := r.store.GetModelByStatus(ctx, models.ModelStatusSecondary)
	if err != nil && !errors.Is(err, indexstore.ErrNotFound) {
		return fmt.Errorf("load secondary model: %w", err)
	}

	r.current.Store(&Snapshot{Primary: primary, Secondary: secondary})
	return nil
}

// Run refreshes the snapshot periodically until the context ends.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				slog.Warn("embedding model refresh failed", "error", err)
			}
		}
	}
}

// Current returns the latest snapshot without locking.
func (r *Registry) Current() Snapshot {
	if s := r.current.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Primary returns the live query-time model, or ErrNoPrimary before
// bootstrap.
func (r *Registry) Primary() (*models.EmbeddingModel, error) {
	s := r.Current()
	if s.Primary == nil {
		return nil, ErrNoPrimary
	}
	return s.Primary, nil
}
