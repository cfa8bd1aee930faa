package workers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/embedding"
	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/migration"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/queue"
)

// recordingQueue captures chain enqueues instead of touching redis.
type recordingQueue struct {
	backfills int
	cleanups  int
	prunes    int
}

func (q *recordingQueue) EnqueueMigrationBackfill(uuid.UUID) error {
	q.backfills++
	return nil
}

func (q *recordingQueue) EnqueueMigrationCleanup(uuid.UUID) error {
	q.cleanups++
	return nil
}

func (q *recordingQueue) EnqueueCCPPrune(uuid.UUID) error {
	q.prunes++
	return nil
}

// sweepModelStore replays scripted missing-vector batches and retired-vector
// delete counts.
type sweepModelStore struct {
	secondary *models.EmbeddingModel
	retired   *models.EmbeddingModel
	missing   [][]models.DocumentChunk
	deletes   []int
	promoted  bool
}

func (s *sweepModelStore) ListModels(context.Context) ([]models.EmbeddingModel, error) {
	return nil, nil
}

func (s *sweepModelStore) GetModelByStatus(_ context.Context, status string) (*models.EmbeddingModel, error) {
	switch {
	case status == models.ModelStatusSecondary && s.secondary != nil:
		return s.secondary, nil
	case status == models.ModelStatusRetired && s.retired != nil:
		return s.retired, nil
	}
	return nil, indexstore.ErrNotFound
}

func (s *sweepModelStore) CreateSecondaryModel(context.Context, string, string, int) (*models.EmbeddingModel, error) {
	return nil, indexstore.ErrSecondaryExists
}

func (s *sweepModelStore) UpdateBackfillCursor(_ context.Context, _ uuid.UUID, cursor string) error {
	s.secondary.BackfillCursor = cursor
	return nil
}

func (s *sweepModelStore) ChunksMissingVectors(context.Context, uuid.UUID, string, int) ([]models.DocumentChunk, error) {
	if len(s.missing) == 0 {
		return nil, nil
	}
	batch := s.missing[0]
	s.missing = s.missing[1:]
	return batch, nil
}

func (s *sweepModelStore) CountChunks(context.Context) (int64, error) { return 0, nil }

func (s *sweepModelStore) CountChunkVectors(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *sweepModelStore) UpsertChunkVectors(context.Context, uuid.UUID, []uuid.UUID, [][]float32) error {
	return nil
}

func (s *sweepModelStore) PromoteSecondary(context.Context, uuid.UUID) error {
	s.promoted = true
	return nil
}

func (s *sweepModelStore) DeleteRetiredVectors(context.Context, uuid.UUID, int) (int, error) {
	if len(s.deletes) == 0 {
		return 0, nil
	}
	n := s.deletes[0]
	s.deletes = s.deletes[1:]
	return n, nil
}

type fixedProvider struct{}

func (fixedProvider) Name() string { return "fixed" }

func (fixedProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.5}
	}
	return out, nil
}

func testManager(store *sweepModelStore) *migration.Manager {
	svc := embedding.NewService(fixedProvider{}, time.Second)
	reg := embedding.NewRegistry(store, time.Minute)
	return migration.NewManager(store, svc, reg, 10)
}

func backfillTask(t *testing.T, modelID uuid.UUID) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.MigrationBackfillPayload{ModelID: modelID.String()})
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeMigrationBackfill, payload)
}

func TestBackfillWorkerChainsUntilComplete(t *testing.T) {
	modelID := uuid.New()
	store := &sweepModelStore{
		secondary: &models.EmbeddingModel{ID: modelID, Name: "m2", Status: models.ModelStatusSecondary},
		missing: [][]models.DocumentChunk{
			{{ID: uuid.New(), Content: "alpha"}},
		},
	}
	q := &recordingQueue{}
	w := NewBackfillWorker(testManager(store), q)
	task := backfillTask(t, modelID)

	// First sweep indexes a batch and queues the next sweep.
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, q.backfills)
	assert.Equal(t, 0, q.cleanups)
	assert.False(t, store.promoted)

	// The chained sweep finds nothing missing, promotes, and hands off to
	// cleanup instead of re-enqueueing itself.
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, q.backfills)
	assert.Equal(t, 1, q.cleanups)
	assert.True(t, store.promoted)
}

func TestCleanupWorkerChainsUntilEmpty(t *testing.T) {
	modelID := uuid.New()
	store := &sweepModelStore{
		retired: &models.EmbeddingModel{ID: modelID, Name: "m1", Status: models.ModelStatusRetired},
		deletes: []int{500},
	}
	q := &recordingQueue{}
	w := NewCleanupWorker(testManager(store), q)

	payload, err := json.Marshal(queue.MigrationCleanupPayload{ModelID: modelID.String()})
	require.NoError(t, err)
	task := asynq.NewTask(queue.TypeMigrationCleanup, payload)

	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, q.cleanups)

	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, q.cleanups)
}

type scriptedPruner struct {
	removed []int
}

func (p *scriptedPruner) PruneCCPDocuments(context.Context, uuid.UUID, int) (int, error) {
	if len(p.removed) == 0 {
		return 0, nil
	}
	n := p.removed[0]
	p.removed = p.removed[1:]
	return n, nil
}

func TestPruneWorkerChainsUntilEmpty(t *testing.T) {
	ccpID := uuid.New()
	pruner := &scriptedPruner{removed: []int{500, 500}}
	q := &recordingQueue{}
	w := NewPruneWorker(pruner, q)

	payload, err := json.Marshal(queue.CCPPrunePayload{CCPID: ccpID.String()})
	require.NoError(t, err)
	task := asynq.NewTask(queue.TypeCCPPrune, payload)

	require.NoError(t, w.ProcessTask(context.Background(), task))
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, 2, q.prunes)

	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, 2, q.prunes)
}
