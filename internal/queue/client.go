package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/beaconhq/beacon/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueIndexRun schedules one indexing run for a pair. The task ID is
// derived from the pair, so a run already queued or executing absorbs
// further enqueues instead of stacking duplicates. On-demand runs go to
// the critical queue ahead of scheduled ones.
func (c *Client) EnqueueIndexRun(ccpID uuid.UUID, onDemand bool) error {
	q := "default"
	if onDemand {
		q = "critical"
	}
	err := c.enqueue(TypeIndexRun, IndexRunPayload{CCPID: ccpID.String(), OnDemand: onDemand},
		asynq.TaskID("index:run:"+ccpID.String()),
		asynq.Queue(q),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueMigrationBackfill queues one backfill sweep. Sweep tasks chain:
// an incomplete sweep enqueues its successor from inside its own handler,
// and asynq holds a task ID reserved until the handler returns, so chain
// tasks carry no dedupe ID. A duplicate sweep only re-reads the cursor;
// every batch write is an idempotent upsert.
func (c *Client) EnqueueMigrationBackfill(modelID uuid.UUID) error {
	return c.enqueue(TypeMigrationBackfill, MigrationBackfillPayload{ModelID: modelID.String()},
		asynq.Queue("low"),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Minute),
	)
}

// EnqueueMigrationCleanup queues one retired-vector GC batch. Chains like
// backfill, so no dedupe ID.
func (c *Client) EnqueueMigrationCleanup(modelID uuid.UUID) error {
	return c.enqueue(TypeMigrationCleanup, MigrationCleanupPayload{ModelID: modelID.String()},
		asynq.Queue("low"),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Minute),
	)
}

// EnqueueCCPPrune queues one document-prune batch for a deleted pair.
// Chains like backfill, so no dedupe ID.
func (c *Client) EnqueueCCPPrune(ccpID uuid.UUID) error {
	return c.enqueue(TypeCCPPrune, CCPPrunePayload{CCPID: ccpID.String()},
		asynq.Queue("low"),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Minute),
	)
}

func (c *Client) enqueue(taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.Enqueue(task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
