package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/beaconhq/beacon/internal/migration"
	"github.com/beaconhq/beacon/internal/queue"
)

// migrationEnqueuer is the slice of queue.Client the migration chain needs.
type migrationEnqueuer interface {
	EnqueueMigrationBackfill(modelID uuid.UUID) error
	EnqueueMigrationCleanup(modelID uuid.UUID) error
}

// BackfillWorker advances a model migration one sweep batch per task.
// Incomplete sweeps re-enqueue themselves, so a long backfill never holds
// a worker slot for more than one batch.
type BackfillWorker struct {
	manager *migration.Manager
	client  migrationEnqueuer
}

func NewBackfillWorker(manager *migration.Manager, client migrationEnqueuer) *BackfillWorker {
	return &BackfillWorker{manager: manager, client: client}
}

func (w *BackfillWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.MigrationBackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	modelID, err := uuid.Parse(payload.ModelID)
	if err != nil {
		return fmt.Errorf("parse model ID: %w", err)
	}

	done, err := w.manager.SweepOnce(ctx)
	if err != nil {
		return fmt.Errorf("backfill sweep: %w", err)
	}
	if done {
		slog.Info("backfill complete", "model_id", modelID)
		if err := w.client.EnqueueMigrationCleanup(modelID); err != nil {
			slog.Error("failed to enqueue retired-vector cleanup", "error", err)
		}
		return nil
	}
	if err := w.client.EnqueueMigrationBackfill(modelID); err != nil {
		return fmt.Errorf("re-enqueue backfill: %w", err)
	}
	return nil
}

// CleanupWorker garbage-collects vectors left behind by retired models,
// one batch per task.
type CleanupWorker struct {
	manager *migration.Manager
	client  migrationEnqueuer
	batch   int
}

func NewCleanupWorker(manager *migration.Manager, client migrationEnqueuer) *CleanupWorker {
	return &CleanupWorker{manager: manager, client: client, batch: 500}
}

func (w *CleanupWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.MigrationCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	modelID, err := uuid.Parse(payload.ModelID)
	if err != nil {
		return fmt.Errorf("parse model ID: %w", err)
	}

	done, err := w.manager.CleanupOnce(ctx, w.batch)
	if err != nil {
		return fmt.Errorf("retired-vector cleanup: %w", err)
	}
	if done {
		slog.Info("retired vectors cleaned up", "model_id", modelID)
		return nil
	}
	if err := w.client.EnqueueMigrationCleanup(modelID); err != nil {
		return fmt.Errorf("re-enqueue cleanup: %w", err)
	}
	return nil
}
