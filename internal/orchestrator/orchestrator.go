// Package orchestrator schedules connector runs and drives each index
// attempt: poll a batch, normalize and chunk it, resolve access, embed,
// upsert, then durably advance the cursor. One attempt per CCP runs at a
// time; batches within an attempt are processed strictly in fetch order.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beaconhq/beacon/internal/access"
	"github.com/beaconhq/beacon/internal/connectors"
	"github.com/beaconhq/beacon/internal/embedding"
	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/pkg/chunker"
)

// CredentialResolver turns a CCP's credential reference into a secret.
// Credential lifecycle (OAuth flows, rotation) is owned externally; the
// pipeline only ever sees the resolved value.
type CredentialResolver interface {
	Resolve(ref string) (string, error)
}

// EnvCredentials resolves references as environment variable names.
type EnvCredentials struct{}

func (EnvCredentials) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	v := os.Getenv(ref)
	if v == "" {
		return "", fmt.Errorf("credential %s not set", ref)
	}
	return v, nil
}

// Store is the persistence surface an index run needs.
type Store interface {
	indexstore.CCPStore
	indexstore.AttemptStore
	indexstore.DocumentStore
}

type Orchestrator struct {
	store       Store
	registry    *connectors.Registry
	creds       CredentialResolver
	embedder    *embedding.Service
	modelReg    *embedding.Registry
	locker      RunLocker
	chunkOpts   chunker.Options
	backoff     Backoff
	pollTimeout time.Duration
}

type Options struct {
	ChunkOpts   chunker.Options
	Backoff     Backoff
	PollTimeout time.Duration
}

func New(store Store, registry *connectors.Registry, creds CredentialResolver,
	embedder *embedding.Service, modelReg *embedding.Registry, locker RunLocker, opts Options) *Orchestrator {
	if opts.ChunkOpts.ChunkSize == 0 {
		opts.ChunkOpts = chunker.DefaultOptions()
	}
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		store:       store,
		registry:    registry,
		creds:       creds,
		embedder:    embedder,
		modelReg:    modelReg,
		locker:      locker,
		chunkOpts:   opts.ChunkOpts,
		backoff:     opts.Backoff,
		pollTimeout: opts.PollTimeout,
	}
}

// RunAttempt executes one index attempt for a CCP. A held run lock means an
// attempt is already in flight; the tick is skipped, not queued.
func (o *Orchestrator) RunAttempt(ctx context.Context, ccpID uuid.UUID) error {
	ccp, err := o.store.GetCCP(ctx, ccpID)
	if err != nil {
		return fmt.Errorf("load ccp %s: %w", ccpID, err)
	}
	if ccp.Status != models.CCPStatusActive {
		slog.Info("skipping run for inactive ccp", "ccp", ccp.Name, "status", ccp.Status)
		return nil
	}

	token, ok, err := o.locker.Acquire(ctx, ccpID.String())
	if err != nil {
		return fmt.Errorf("lock ccp %s: %w", ccpID, err)
	}
	if !ok {
		slog.Info("index attempt already running, skipping", "ccp", ccp.Name)
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.locker.Release(releaseCtx, ccpID.String(), token); err != nil {
			slog.Warn("run lock release failed", "ccp", ccp.Name, "error", err)
		}
	}()

	attempt, err := o.store.CreateAttempt(ctx, ccpID)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	if err := o.store.StartAttempt(ctx, attempt.ID); err != nil {
		return fmt.Errorf("start attempt: %w", err)
	}

	extend := func(ctx context.Context) {
		if err := o.locker.Extend(ctx, ccpID.String(), token); err != nil {
			slog.Warn("run lock extend failed", "ccp", ccp.Name, "error", err)
		}
	}

	docsProcessed, runErr := o.run(ctx, ccp, extend)

	status := models.AttemptStatusSuccess
	errDetail := ""
	if runErr != nil {
		status = models.AttemptStatusFailed
		errDetail = runErr.Error()
	}
	finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.FinalizeAttempt(finCtx, attempt.ID, status, docsProcessed, errDetail); err != nil {
		slog.Error("finalize attempt failed", "attempt", attempt.ID, "error", err)
	}

	if runErr != nil {
		if errors.Is(runErr, connectors.ErrAuthExpired) {
			// Stop scheduling until the credential is refreshed and the
			// CCP is resumed externally.
			if err := o.store.UpdateCCPStatus(finCtx, ccpID, models.CCPStatusError); err != nil {
				slog.Error("mark ccp error failed", "ccp", ccp.Name, "error", err)
			}
		}
		slog.Error("index attempt failed", "ccp", ccp.Name, "docs", docsProcessed, "error", runErr)
		return runErr
	}

	if err := o.store.MarkCCPRun(finCtx, ccpID, time.Now().UTC()); err != nil {
		slog.Error("mark ccp run failed", "ccp", ccp.Name, "error", err)
	}
	slog.Info("index attempt complete", "ccp", ccp.Name, "docs", docsProcessed)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, ccp *models.ConnectorCredentialPair, extend func(context.Context)) (int, error) {
	credential, err := o.creds.Resolve(ccp.CredentialRef)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, connectors.ErrAuthExpired)
	}
	conn, err := o.registry.Create(ccp.SourceType, ccp.Config, credential)
	if err != nil {
		return 0, fmt.Errorf("create connector: %w", err)
	}

	snap := o.modelReg.Current()
	if snap.Primary == nil {
		return 0, embedding.ErrNoPrimary
	}

	cursor := ccp.Cursor
	docsProcessed := 0
	for {
		// Cancellation is honored at batch boundaries; the cursor stays at
		// the last committed point.
		if err := ctx.Err(); err != nil {
			return docsProcessed, err
		}

		batch, err := o.pollWithRetry(ctx, conn, cursor)
		if err != nil {
			return docsProcessed, err
		}

		indexed, err := o.indexBatch(ctx, ccp, snap, batch.Documents)
		if err != nil {
			return docsProcessed, err
		}
		docsProcessed += indexed

		// The cursor advances only after the batch is durably indexed;
		// a crash before this point redelivers the batch, and idempotent
		// upserts make the redelivery harmless.
		if err := o.store.CommitCursor(ctx, ccp.ID, batch.NextCursor, indexed); err != nil {
			return docsProcessed, fmt.Errorf("commit cursor: %w", err)
		}
		cursor = batch.NextCursor

		if !batch.HasMore {
			return docsProcessed, nil
		}

		// Multi-batch runs can outlive the lock TTL; refresh it at each
		// batch boundary so the attempt keeps its mutual exclusion.
		extend(ctx)
	}
}

func (o *Orchestrator) pollWithRetry(ctx context.Context, conn connectors.Connector, cursor string) (*connectors.Batch, error) {
	var lastErr error
	for attempt := 0; attempt < o.backoff.MaxAttempts; attempt++ {
		pollCtx, cancel := context.WithTimeout(ctx, o.pollTimeout)
		batch, err := conn.Poll(pollCtx, cursor)
		// Read the deadline state before cancel, which would report every
		// poll as expired and mask the connector's own classification.
		timedOut := pollCtx.Err() != nil && ctx.Err() == nil
		cancel()
		if err == nil {
			return batch, nil
		}
		// A timed-out poll is a transient source failure.
		if timedOut {
			err = fmt.Errorf("poll timeout: %w", connectors.ErrSourceUnavailable)
		}
		if !connectors.Retryable(err) {
			return nil, err
		}
		lastErr = err

		hint, _ := connectors.RetryAfterHint(err)
		slog.Warn("connector poll failed, retrying", "attempt", attempt+1, "error", err)
		if err := o.backoff.Sleep(ctx, attempt, hint); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("poll retries exhausted: %w", lastErr)
}

// indexBatch normalizes, embeds and upserts one batch of raw documents.
// A malformed document is skipped and logged; it never aborts the batch.
func (o *Orchestrator) indexBatch(ctx context.Context, ccp *models.ConnectorCredentialPair,
	snap embedding.Snapshot, docs []connectors.RawDocument) (int, error) {
	indexed := 0
	for _, raw := range docs {
		if raw.ID == "" || raw.Content == "" {
			slog.Warn("skipping malformed document", "ccp", ccp.Name, "doc_id", raw.ID)
			continue
		}
		if err := o.indexDocument(ctx, ccp, snap, raw); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}

func (o *Orchestrator) indexDocument(ctx context.Context, ccp *models.ConnectorCredentialPair,
	snap embedding.Snapshot, raw connectors.RawDocument) error {
	now := time.Now().UTC()

	pieces := chunker.Split(raw.Content, o.chunkOpts)
	chunks := make([]models.DocumentChunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.DocumentChunk{
			ID:         chunker.ChunkID(raw.ID, p.Index),
			DocumentID: raw.ID,
			ChunkIndex: p.Index,
			Content:    p.Content,
			TokenCount: chunker.TokenEstimate(p.Content),
		}
		texts[i] = p.Content
	}

	// Mid-migration every new chunk gets vectors under both models; the
	// write amplification is the accepted cost of a zero-downtime swap.
	vectors := make(map[uuid.UUID][][]float32, 2)
	var primaryVecs, secondaryVecs [][]float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		primaryVecs, err = o.embedWithRetry(gctx, snap.Primary.Name, texts)
		return err
	})
	if snap.Secondary != nil {
		g.Go(func() error {
			var err error
			secondaryVecs, err = o.embedWithRetry(gctx, snap.Secondary.Name, texts)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("embed document %s: %w", raw.ID, err)
	}
	vectors[snap.Primary.ID] = primaryVecs
	if snap.Secondary != nil {
		vectors[snap.Secondary.ID] = secondaryVecs
	}

	var tags []models.Tag
	for k, v := range raw.Tags {
		tags = append(tags, models.Tag{Key: k, Value: v})
	}

	metadata := rawMetadata(raw.Metadata)

	up := indexstore.DocumentUpsert{
		Document: models.Document{
			ID:         raw.ID,
			CCPID:      ccp.ID,
			SourceType: ccp.SourceType,
			Title:      raw.Title,
			Link:       raw.Link,
			UpdatedAt:  raw.UpdatedAt.UTC(),
			Metadata:   metadata,
		},
		Chunks:  chunks,
		Vectors: vectors,
		Access:  access.Resolve(raw.ID, raw.Permissions, now),
		Tags:    tags,
	}
	if err := o.store.UpsertDocument(ctx, up); err != nil {
		return fmt.Errorf("upsert document %s: %w", raw.ID, err)
	}
	return nil
}

func rawMetadata(m map[string]string) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func (o *Orchestrator) embedWithRetry(ctx context.Context, model string, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < o.backoff.MaxAttempts; attempt++ {
		vecs, err := o.embedder.Embed(ctx, model, texts)
		if err == nil {
			return vecs, nil
		}
		if !errors.Is(err, embedding.ErrServiceUnavailable) {
			return nil, err
		}
		lastErr = err
		slog.Warn("embedding call failed, retrying", "model", model, "attempt", attempt+1, "error", err)
		if err := o.backoff.Sleep(ctx, attempt, 0); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("embed retries exhausted: %w", lastErr)
}
