package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/indexstore"
)

// RunEnqueuer hands index runs to the worker pool. Enqueueing is
// deduplicated per CCP, so a tick that lands while a run is queued or in
// flight is dropped, not stacked.
type RunEnqueuer interface {
	EnqueueIndexRun(ccpID uuid.UUID, onDemand bool) error
}

// Scheduler turns recurring ticks into index runs for CCPs whose refresh
// interval has elapsed.
type Scheduler struct {
	store indexstore.CCPStore
	enq   RunEnqueuer
}

func NewScheduler(store indexstore.CCPStore, enq RunEnqueuer) *Scheduler {
	return &Scheduler{store: store, enq: enq}
}

// Tick scans due active CCPs and enqueues a run for each. Individual
// enqueue failures are logged and do not stop the scan.
func (s *Scheduler) Tick(ctx context.Context) error {
	due, err := s.store.ListDueCCPs(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("list due ccps: %w", err)
	}

	for _, ccp := range due {
		if err := s.enq.EnqueueIndexRun(ccp.ID, false); err != nil {
			slog.Warn("enqueue index run failed", "ccp", ccp.Name, "error", err)
			continue
		}
		slog.Debug("index run enqueued", "ccp", ccp.Name)
	}
	return nil
}
