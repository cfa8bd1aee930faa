package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/beaconhq/beacon/internal/queue"
)

const pruneBatchSize = 500

// documentPruner is the slice of the CCP store the prune chain needs.
type documentPruner interface {
	PruneCCPDocuments(ctx context.Context, ccpID uuid.UUID, limit int) (int, error)
}

type pruneEnqueuer interface {
	EnqueueCCPPrune(ccpID uuid.UUID) error
}

// PruneWorker removes documents owned by a deleted pair, one batch per
// task. Re-enqueues itself until the store reports nothing left, at which
// point the pair row itself is gone.
type PruneWorker struct {
	store  documentPruner
	client pruneEnqueuer
}

func NewPruneWorker(store documentPruner, client pruneEnqueuer) *PruneWorker {
	return &PruneWorker{store: store, client: client}
}

func (w *PruneWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.CCPPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	ccpID, err := uuid.Parse(payload.CCPID)
	if err != nil {
		return fmt.Errorf("parse ccp ID: %w", err)
	}

	removed, err := w.store.PruneCCPDocuments(ctx, ccpID, pruneBatchSize)
	if err != nil {
		return fmt.Errorf("prune documents for %s: %w", ccpID, err)
	}
	if removed == 0 {
		slog.Info("ccp prune complete", "ccp_id", ccpID)
		return nil
	}
	slog.Info("pruned document batch", "ccp_id", ccpID, "removed", removed)
	if err := w.client.EnqueueCCPPrune(ccpID); err != nil {
		return fmt.Errorf("re-enqueue prune: %w", err)
	}
	return nil
}
