// Package indexstore persists documents, chunks, keyword postings, vectors
// and access metadata, and serves both search legs. It is the only shared
// mutable state in the pipeline; all writes to one document are serialized
// inside the store.
package indexstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/models"
)

var (
	// ErrSecondaryExists is returned when a migration is started while a
	// secondary model already exists.
	ErrSecondaryExists = errors.New("secondary embedding model already exists")

	ErrNotFound = errors.New("not found")
)

// SearchFilters narrow both search legs before ranking.
type SearchFilters struct {
	TimeCutoff  *time.Time
	SourceTypes []string
	Tags        []models.Tag
}

// SearchResult is one ranked chunk with enough document context to build a
// citation.
type SearchResult struct {
	ChunkID      uuid.UUID `json:"chunk_id"`
	DocumentID   string    `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	Score        float64   `json:"score"`
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	SourceType   string    `json:"source_type"`
	DocUpdatedAt time.Time `json:"doc_updated_at"`
}

// DocumentUpsert is the unit of indexing: a document version with its full
// chunk set, vectors per embedding model, resolved access entry and tags.
// Applying it replaces everything previously stored for the document ID.
type DocumentUpsert struct {
	Document models.Document
	Chunks   []models.DocumentChunk
	// Vectors maps model ID to per-chunk vectors, parallel to Chunks.
	Vectors map[uuid.UUID][][]float32
	Access  models.AccessControlEntry
	Tags    []models.Tag
}

// CCPStore manages connector-credential pairs and their cursors.
type CCPStore interface {
	CreateCCP(ctx context.Context, ccp *models.ConnectorCredentialPair) error
	GetCCP(ctx context.Context, id uuid.UUID) (*models.ConnectorCredentialPair, error)
	ListCCPs(ctx context.Context) ([]models.ConnectorCredentialPair, error)
	ListDueCCPs(ctx context.Context, now time.Time) ([]models.ConnectorCredentialPair, error)
	UpdateCCPStatus(ctx context.Context, id uuid.UUID, status string) error
	// CommitCursor durably advances a CCP's cursor after a batch has been
	// indexed, accumulating the processed-document count.
	CommitCursor(ctx context.Context, id uuid.UUID, cursor string, docsDelta int) error
	MarkCCPRun(ctx context.Context, id uuid.UUID, at time.Time) error
	// PruneCCPDocuments deletes up to limit documents owned by a CCP,
	// returning how many were removed. The final call (0 removed) deletes
	// the CCP row itself.
	PruneCCPDocuments(ctx context.Context, id uuid.UUID, limit int) (int, error)
}

// AttemptStore records index attempts. Terminal rows are never updated.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, ccpID uuid.UUID) (*models.IndexAttempt, error)
	StartAttempt(ctx context.Context, id uuid.UUID) error
	FinalizeAttempt(ctx context.Context, id uuid.UUID, status string, docsProcessed int, errDetail string) error
	ListAttempts(ctx context.Context, ccpID uuid.UUID, limit int) ([]models.IndexAttempt, error)
}

// DocumentStore applies document upserts and serves access entries.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, up DocumentUpsert) error
	// FetchAccess bulk-loads access entries for the given document IDs.
	// IDs without an entry are absent from the map; callers treat absence
	// as inaccessible.
	FetchAccess(ctx context.Context, docIDs []string) (map[string]models.AccessControlEntry, error)
}

// SearchStore serves the two retrieval legs.
type SearchStore interface {
	KeywordSearch(ctx context.Context, query string, filters SearchFilters, limit int) ([]SearchResult, error)
	VectorSearch(ctx context.Context, queryVec []float32, modelID uuid.UUID, filters SearchFilters, limit int) ([]SearchResult, error)
}

// ModelStore manages embedding model rows and migration bookkeeping.
type ModelStore interface {
	ListModels(ctx context.Context) ([]models.EmbeddingModel, error)
	GetModelByStatus(ctx context.Context, status string) (*models.EmbeddingModel, error)
	// CreateSecondaryModel inserts a new secondary model, or
	// ErrSecondaryExists if a migration is already underway. When no
	// primary exists yet the model is created as primary directly.
	CreateSecondaryModel(ctx context.Context, name, provider string, dim int) (*models.EmbeddingModel, error)
	UpdateBackfillCursor(ctx context.Context, modelID uuid.UUID, cursor string) error
	// ChunksMissingVectors pages through chunks that have no vector under
	// the model, ordered by chunk ID, starting strictly after the cursor.
	ChunksMissingVectors(ctx context.Context, modelID uuid.UUID, afterChunkID string, limit int) ([]models.DocumentChunk, error)
	CountChunks(ctx context.Context) (int64, error)
	CountChunkVectors(ctx context.Context, modelID uuid.UUID) (int64, error)
	UpsertChunkVectors(ctx context.Context, modelID uuid.UUID, chunkIDs []uuid.UUID, vecs [][]float32) error
	// PromoteSecondary atomically swaps the secondary to primary and
	// retires the old primary in a single transaction.
	PromoteSecondary(ctx context.Context, secondaryID uuid.UUID) error
	// DeleteRetiredVectors garbage-collects up to limit vectors of a
	// retired model, deleting the model row once none remain.
	DeleteRetiredVectors(ctx context.Context, modelID uuid.UUID, limit int) (int, error)
}

// Store is the full persistence surface backed by Postgres.
type Store interface {
	CCPStore
	AttemptStore
	DocumentStore
	SearchStore
	ModelStore
}
