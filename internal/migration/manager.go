// Package migration drives the embedding-model migration state machine:
// introduce a secondary model, backfill vectors for every existing chunk,
// then atomically promote it to primary and garbage-collect the old
// vectors. Live indexing and live queries keep running throughout.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/embedding"
	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/models"
)

// ErrMigrationInProgress rejects a start command while another migration is
// mid-flight. It is a rejected command, not a fault: the running migration
// is untouched.
var ErrMigrationInProgress = errors.New("embedding model migration already in progress")

type Manager struct {
	store    indexstore.ModelStore
	embedder *embedding.Service
	registry *embedding.Registry

	sweepBatch int
}

func NewManager(store indexstore.ModelStore, embedder *embedding.Service, registry *embedding.Registry, sweepBatch int) *Manager {
	if sweepBatch <= 0 {
		sweepBatch = 100
	}
	return &Manager{store: store, embedder: embedder, registry: registry, sweepBatch: sweepBatch}
}

// Start introduces a new embedding model. The first model ever created
// becomes primary immediately; any later model starts as secondary and
// enters backfill. At most one migration runs at a time.
func (m *Manager) Start(ctx context.Context, name, provider string, dim int) (*models.EmbeddingModel, error) {
	model, err := m.store.CreateSecondaryModel(ctx, name, provider, dim)
	if err != nil {
		if errors.Is(err, indexstore.ErrSecondaryExists) {
			return nil, ErrMigrationInProgress
		}
		return nil, fmt.Errorf("create model %s: %w", name, err)
	}

	if err := m.registry.Refresh(ctx); err != nil {
		slog.Warn("model registry refresh after start failed", "error", err)
	}

	slog.Info("embedding model created", "model", name, "status", model.Status, "dim", dim)
	return model, nil
}

// SweepOnce backfills one batch of secondary-model vectors and persists the
// progress cursor. It returns done=true when no secondary model exists or
// every chunk has its vector. An embedding outage surfaces as an error; the
// caller retries later, nothing written so far is rolled back.
func (m *Manager) SweepOnce(ctx context.Context) (done bool, err error) {
	secondary, err := m.store.GetModelByStatus(ctx, models.ModelStatusSecondary)
	if errors.Is(err, indexstore.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	chunks, err := m.store.ChunksMissingVectors(ctx, secondary.ID, secondary.BackfillCursor, m.sweepBatch)
	if err != nil {
		return false, err
	}
	if len(chunks) == 0 {
		// Restart the scan once from the top: chunks written before the
		// cursor position by concurrent re-indexing already carry both
		// vectors, but a clean pass proves completeness before promotion.
		if secondary.BackfillCursor != "" {
			if err := m.store.UpdateBackfillCursor(ctx, secondary.ID, ""); err != nil {
				return false, err
			}
			remaining, err := m.store.ChunksMissingVectors(ctx, secondary.ID, "", 1)
			if err != nil {
				return false, err
			}
			if len(remaining) > 0 {
				return false, nil
			}
		}
		return true, m.promote(ctx, secondary)
	}

	texts := make([]string, len(chunks))
	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		ids[i] = c.ID
	}

	vecs, err := m.embedder.Embed(ctx, secondary.Name, texts)
	if err != nil {
		return false, fmt.Errorf("backfill embed: %w", err)
	}
	if err := m.store.UpsertChunkVectors(ctx, secondary.ID, ids, vecs); err != nil {
		return false, fmt.Errorf("backfill write: %w", err)
	}

	// Cursor advances only after the batch is durably written, so an
	// interrupted sweep resumes without losing progress.
	last := ids[len(ids)-1].String()
	if err := m.store.UpdateBackfillCursor(ctx, secondary.ID, last); err != nil {
		return false, fmt.Errorf("persist backfill cursor: %w", err)
	}

	slog.Info("backfill batch complete", "model", secondary.Name, "chunks", len(chunks), "cursor", last)
	return false, nil
}

// promote swaps the verified-complete secondary to primary in one store
// transaction and refreshes the read snapshot. Queries observe either the
// old primary or the new one, never both and never neither.
func (m *Manager) promote(ctx context.Context, secondary *models.EmbeddingModel) error {
	oldPrimary, err := m.store.GetModelByStatus(ctx, models.ModelStatusPrimary)
	if err != nil && !errors.Is(err, indexstore.ErrNotFound) {
		return err
	}

	if err := m.store.PromoteSecondary(ctx, secondary.ID); err != nil {
		return fmt.Errorf("promote %s: %w", secondary.Name, err)
	}
	if err := m.registry.Refresh(ctx); err != nil {
		slog.Warn("model registry refresh after promote failed", "error", err)
	}

	if oldPrimary != nil {
		slog.Info("embedding model promoted", "new_primary", secondary.Name, "retired", oldPrimary.Name)
	} else {
		slog.Info("embedding model promoted", "new_primary", secondary.Name)
	}
	return nil
}

// CleanupOnce garbage-collects one batch of a retired model's vectors.
// Returns done=true when nothing retired remains.
func (m *Manager) CleanupOnce(ctx context.Context, batch int) (done bool, err error) {
	retired, err := m.store.GetModelByStatus(ctx, models.ModelStatusRetired)
	if errors.Is(err, indexstore.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	removed, err := m.store.DeleteRetiredVectors(ctx, retired.ID, batch)
	if err != nil {
		return false, err
	}
	if removed == 0 {
		slog.Info("retired embedding model cleaned up", "model", retired.Name)
		return true, nil
	}
	return false, nil
}

// Status reports the migration state for the admin surface.
type Status struct {
	CurrentModelName   string  `json:"current_model_name"`
	SecondaryModelName *string `json:"secondary_model_name"`
	BackfillPercent    float64 `json:"backfill_progress_percent"`
}

func (m *Manager) Status(ctx context.Context) (*Status, error) {
	var st Status

	primary, err := m.store.GetModelByStatus(ctx, models.ModelStatusPrimary)
	if err != nil && !errors.Is(err, indexstore.ErrNotFound) {
		return nil, err
	}
	if primary != nil {
		st.CurrentModelName = primary.Name
	}

	secondary, err := m.store.GetModelByStatus(ctx, models.ModelStatusSecondary)
	if errors.Is(err, indexstore.ErrNotFound) {
		return &st, nil
	}
	if err != nil {
		return nil, err
	}
	st.SecondaryModelName = &secondary.Name

	total, err := m.store.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		st.BackfillPercent = 100
		return &st, nil
	}
	have, err := m.store.CountChunkVectors(ctx, secondary.ID)
	if err != nil {
		return nil, err
	}
	st.BackfillPercent = float64(have) / float64(total) * 100
	if st.BackfillPercent > 100 {
		st.BackfillPercent = 100
	}
	return &st, nil
}
