// Package workers holds the asynq task handlers that drive indexing,
// embedding migration and document pruning.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/beaconhq/beacon/internal/orchestrator"
	"github.com/beaconhq/beacon/internal/queue"
)

type IndexWorker struct {
	orch *orchestrator.Orchestrator
}

func NewIndexWorker(orch *orchestrator.Orchestrator) *IndexWorker {
	return &IndexWorker{orch: orch}
}

func (w *IndexWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.IndexRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	ccpID, err := uuid.Parse(payload.CCPID)
	if err != nil {
		return fmt.Errorf("parse ccp ID: %w", err)
	}

	slog.Info("running index attempt", "ccp_id", ccpID, "on_demand", payload.OnDemand)
	if err := w.orch.RunAttempt(ctx, ccpID); err != nil {
		return fmt.Errorf("index run %s: %w", ccpID, err)
	}
	return nil
}
