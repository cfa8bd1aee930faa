package indexstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/beaconhq/beacon/internal/models"
)

type PgStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PgStore)(nil)

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

// --- CCPs ---

const ccpColumns = `id, name, source_type, config, credential_ref, status, cursor, refresh_interval_secs, last_run_at, docs_indexed, created_at`

func scanCCP(row pgx.Row) (*models.ConnectorCredentialPair, error) {
	var c models.ConnectorCredentialPair
	err := row.Scan(&c.ID, &c.Name, &c.SourceType, &c.Config, &c.CredentialRef, &c.Status,
		&c.Cursor, &c.RefreshInterval, &c.LastRunAt, &c.DocsIndexed, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PgStore) CreateCCP(ctx context.Context, ccp *models.ConnectorCredentialPair) error {
	if ccp.ID == uuid.Nil {
		ccp.ID = uuid.New()
	}
	if ccp.Status == "" {
		ccp.Status = models.CCPStatusActive
	}
	row := s.db.QueryRow(ctx,
		`INSERT INTO connector_credential_pairs (id, name, source_type, config, credential_ref, status, cursor, refresh_interval_secs)
		 VALUES ($1, $2, $3, $4, $5, $6, '', $7)
		 RETURNING `+ccpColumns,
		ccp.ID, ccp.Name, ccp.SourceType, ccp.Config, ccp.CredentialRef, ccp.Status, ccp.RefreshInterval,
	)
	created, err := scanCCP(row)
	if err != nil {
		return fmt.Errorf("insert ccp: %w", err)
	}
	*ccp = *created
	return nil
}

func (s *PgStore) GetCCP(ctx context.Context, id uuid.UUID) (*models.ConnectorCredentialPair, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+ccpColumns+` FROM connector_credential_pairs WHERE id = $1`, id)
	ccp, err := scanCCP(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ccp: %w", err)
	}
	return ccp, nil
}

func (s *PgStore) ListCCPs(ctx context.Context) ([]models.ConnectorCredentialPair, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+ccpColumns+` FROM connector_credential_pairs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list ccps: %w", err)
	}
	defer rows.Close()
	return collectCCPs(rows)
}

func (s *PgStore) ListDueCCPs(ctx context.Context, now time.Time) ([]models.ConnectorCredentialPair, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+ccpColumns+` FROM connector_credential_pairs
		 WHERE status = $1
		   AND (last_run_at IS NULL OR last_run_at + make_interval(secs => refresh_interval_secs) <= $2)
		 ORDER BY last_run_at NULLS FIRST`,
		models.CCPStatusActive, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list due ccps: %w", err)
	}
	defer rows.Close()
	return collectCCPs(rows)
}

func collectCCPs(rows pgx.Rows) ([]models.ConnectorCredentialPair, error) {
	var out []models.ConnectorCredentialPair
	for rows.Next() {
		c, err := scanCCP(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ccp: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PgStore) UpdateCCPStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE connector_credential_pairs SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update ccp status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) CommitCursor(ctx context.Context, id uuid.UUID, cursor string, docsDelta int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE connector_credential_pairs SET cursor = $1, docs_indexed = docs_indexed + $2 WHERE id = $3`,
		cursor, docsDelta, id)
	if err != nil {
		return fmt.Errorf("commit cursor: %w", err)
	}
	return nil
}

func (s *PgStore) MarkCCPRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE connector_credential_pairs SET last_run_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark ccp run: %w", err)
	}
	return nil
}

func (s *PgStore) PruneCCPDocuments(ctx context.Context, id uuid.UUID, limit int) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE id IN (
			SELECT id FROM documents WHERE ccp_id = $1 LIMIT $2
		 )`, id, limit)
	if err != nil {
		return 0, fmt.Errorf("prune ccp documents: %w", err)
	}
	removed := int(tag.RowsAffected())
	if removed == 0 {
		if _, err := s.db.Exec(ctx,
			`DELETE FROM connector_credential_pairs WHERE id = $1`, id); err != nil {
			return 0, fmt.Errorf("delete ccp: %w", err)
		}
	}
	return removed, nil
}

// --- Index attempts ---

func (s *PgStore) CreateAttempt(ctx context.Context, ccpID uuid.UUID) (*models.IndexAttempt, error) {
	var a models.IndexAttempt
	err := s.db.QueryRow(ctx,
		`INSERT INTO index_attempts (id, ccp_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, ccp_id, status, started_at, completed_at, docs_processed, error_detail, created_at`,
		uuid.New(), ccpID, models.AttemptStatusScheduled,
	).Scan(&a.ID, &a.CCPID, &a.Status, &a.StartedAt, &a.CompletedAt, &a.DocsProcessed, &a.ErrorDetail, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return &a, nil
}

func (s *PgStore) StartAttempt(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE index_attempts SET status = $1, started_at = now() WHERE id = $2 AND status = $3`,
		models.AttemptStatusInProgress, id, models.AttemptStatusScheduled)
	if err != nil {
		return fmt.Errorf("start attempt: %w", err)
	}
	return nil
}

func (s *PgStore) FinalizeAttempt(ctx context.Context, id uuid.UUID, status string, docsProcessed int, errDetail string) error {
	// Guard keeps terminal rows immutable.
	_, err := s.db.Exec(ctx,
		`UPDATE index_attempts
		 SET status = $1, completed_at = now(), docs_processed = $2, error_detail = $3
		 WHERE id = $4 AND status NOT IN ($5, $6)`,
		status, docsProcessed, errDetail, id, models.AttemptStatusSuccess, models.AttemptStatusFailed)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	return nil
}

func (s *PgStore) ListAttempts(ctx context.Context, ccpID uuid.UUID, limit int) ([]models.IndexAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, ccp_id, status, started_at, completed_at, docs_processed, error_detail, created_at
		 FROM index_attempts WHERE ccp_id = $1 ORDER BY created_at DESC LIMIT $2`,
		ccpID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []models.IndexAttempt
	for rows.Next() {
		var a models.IndexAttempt
		if err := rows.Scan(&a.ID, &a.CCPID, &a.Status, &a.StartedAt, &a.CompletedAt, &a.DocsProcessed, &a.ErrorDetail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Documents ---

func (s *PgStore) UpsertDocument(ctx context.Context, up DocumentUpsert) error {
	doc := up.Document
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serializes concurrent writes to the same document ID so overlapping
	// batches never interleave partial chunk sets.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, doc.ID); err != nil {
		return fmt.Errorf("acquire document lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO documents (id, ccp_id, source_type, title, link, updated_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET title = $4, link = $5, updated_at = $6, metadata = $7`,
		doc.ID, doc.CCPID, doc.SourceType, doc.Title, doc.Link, doc.UpdatedAt, doc.Metadata,
	); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	// Full replace: old chunks (and their vectors, via FK cascade) go away
	// atomically with the new set arriving.
	if _, err := tx.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("clear chunks for %s: %w", doc.ID, err)
	}

	for i, c := range up.Chunks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO document_chunks (id, document_id, chunk_index, content, token_count)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ID, doc.ID, c.ChunkIndex, c.Content, c.TokenCount,
		); err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", i, doc.ID, err)
		}
	}

	for modelID, vecs := range up.Vectors {
		if len(vecs) != len(up.Chunks) {
			return fmt.Errorf("model %s: %d vectors for %d chunks", modelID, len(vecs), len(up.Chunks))
		}
		for i, v := range vecs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO chunk_embeddings (chunk_id, model_id, embedding)
				 VALUES ($1, $2, $3)`,
				up.Chunks[i].ID, modelID, pgvector.NewVector(v),
			); err != nil {
				return fmt.Errorf("insert vector %d of %s: %w", i, doc.ID, err)
			}
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO document_access (document_id, principals, groups, is_public, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (document_id) DO UPDATE
		 SET principals = $2, groups = $3, is_public = $4, updated_at = $5`,
		doc.ID, up.Access.Principals, up.Access.Groups, up.Access.IsPublic, up.Access.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert access for %s: %w", doc.ID, err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM document_tags WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("clear tags for %s: %w", doc.ID, err)
	}
	for _, t := range up.Tags {
		if _, err := tx.Exec(ctx,
			`INSERT INTO document_tags (document_id, tag_key, tag_value) VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			doc.ID, t.Key, t.Value,
		); err != nil {
			return fmt.Errorf("insert tag for %s: %w", doc.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgStore) FetchAccess(ctx context.Context, docIDs []string) (map[string]models.AccessControlEntry, error) {
	if len(docIDs) == 0 {
		return map[string]models.AccessControlEntry{}, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT document_id, principals, groups, is_public, updated_at
		 FROM document_access WHERE document_id = ANY($1)`, docIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch access: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.AccessControlEntry, len(docIDs))
	for rows.Next() {
		var e models.AccessControlEntry
		if err := rows.Scan(&e.DocumentID, &e.Principals, &e.Groups, &e.IsPublic, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		out[e.DocumentID] = e
	}
	return out, rows.Err()
}

// --- Search ---

// filterClause renders the shared document filters. argOffset is the number
// of positional args already placed in the query.
func filterClause(filters SearchFilters, argOffset int) (string, []any) {
	var sb strings.Builder
	var args []any
	n := argOffset

	if filters.TimeCutoff != nil {
		n++
		fmt.Fprintf(&sb, " AND d.updated_at >= $%d", n)
		args = append(args, *filters.TimeCutoff)
	}
	if len(filters.SourceTypes) > 0 {
		n++
		fmt.Fprintf(&sb, " AND d.source_type = ANY($%d)", n)
		args = append(args, filters.SourceTypes)
	}
	if len(filters.Tags) > 0 {
		var ors []string
		for _, t := range filters.Tags {
			if t.Key != "" {
				ors = append(ors, "(dt.tag_key = $"+strconv.Itoa(n+1)+" AND dt.tag_value = $"+strconv.Itoa(n+2)+")")
				args = append(args, t.Key, t.Value)
				n += 2
			} else {
				ors = append(ors, "dt.tag_value = $"+strconv.Itoa(n+1))
				args = append(args, t.Value)
				n++
			}
		}
		sb.WriteString(" AND EXISTS (SELECT 1 FROM document_tags dt WHERE dt.document_id = d.id AND (")
		sb.WriteString(strings.Join(ors, " OR "))
		sb.WriteString("))")
	}
	return sb.String(), args
}

func (s *PgStore) KeywordSearch(ctx context.Context, query string, filters SearchFilters, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	clause, extra := filterClause(filters, 1)
	args := append([]any{query}, extra...)
	args = append(args, limit)

	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content,
		        ts_rank_cd(c.content_tsv, plainto_tsquery('english', $1)) AS score,
		        d.title, d.link, d.source_type, d.updated_at
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.content_tsv @@ plainto_tsquery('english', $1)`+clause+`
		 ORDER BY score DESC, d.updated_at DESC, c.id
		 LIMIT $`+strconv.Itoa(len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

func (s *PgStore) VectorSearch(ctx context.Context, queryVec []float32, modelID uuid.UUID, filters SearchFilters, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	clause, extra := filterClause(filters, 2)
	args := append([]any{pgvector.NewVector(queryVec), modelID}, extra...)
	args = append(args, limit)

	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content,
		        1 - (e.embedding <=> $1) AS score,
		        d.title, d.link, d.source_type, d.updated_at
		 FROM chunk_embeddings e
		 JOIN document_chunks c ON c.id = e.chunk_id
		 JOIN documents d ON d.id = c.document_id
		 WHERE e.model_id = $2`+clause+`
		 ORDER BY e.embedding <=> $1, c.id
		 LIMIT $`+strconv.Itoa(len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

func collectResults(rows pgx.Rows) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Content,
			&r.Score, &r.Title, &r.Link, &r.SourceType, &r.DocUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Embedding models ---

const modelColumns = `id, name, provider, dim, status, backfill_cursor, created_at`

func scanModel(row pgx.Row) (*models.EmbeddingModel, error) {
	var m models.EmbeddingModel
	err := row.Scan(&m.ID, &m.Name, &m.Provider, &m.Dim, &m.Status, &m.BackfillCursor, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PgStore) ListModels(ctx context.Context) ([]models.EmbeddingModel, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+modelColumns+` FROM embedding_models ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []models.EmbeddingModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *PgStore) GetModelByStatus(ctx context.Context, status string) (*models.EmbeddingModel, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM embedding_models WHERE status = $1`, status)
	m, err := scanModel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s model: %w", status, err)
	}
	return m, nil
}

func (s *PgStore) CreateSecondaryModel(ctx context.Context, name, provider string, dim int) (*models.EmbeddingModel, error) {
	status := models.ModelStatusSecondary
	if _, err := s.GetModelByStatus(ctx, models.ModelStatusPrimary); errors.Is(err, ErrNotFound) {
		// Bootstrap: the very first model becomes primary without a
		// migration.
		status = models.ModelStatusPrimary
	} else if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO embedding_models (id, name, provider, dim, status, backfill_cursor)
		 VALUES ($1, $2, $3, $4, $5, '')
		 RETURNING `+modelColumns,
		uuid.New(), name, provider, dim, status)
	m, err := scanModel(row)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: the partial unique index on status rejects a second
		// secondary (or a primary race) without side effects.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSecondaryExists
		}
		return nil, fmt.Errorf("insert model: %w", err)
	}
	return m, nil
}

func (s *PgStore) UpdateBackfillCursor(ctx context.Context, modelID uuid.UUID, cursor string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE embedding_models SET backfill_cursor = $1 WHERE id = $2`, cursor, modelID)
	if err != nil {
		return fmt.Errorf("update backfill cursor: %w", err)
	}
	return nil
}

func (s *PgStore) ChunksMissingVectors(ctx context.Context, modelID uuid.UUID, afterChunkID string, limit int) ([]models.DocumentChunk, error) {
	if limit <= 0 {
		limit = 100
	}
	after := uuid.Nil
	if afterChunkID != "" {
		parsed, err := uuid.Parse(afterChunkID)
		if err != nil {
			return nil, fmt.Errorf("parse backfill cursor %q: %w", afterChunkID, err)
		}
		after = parsed
	}

	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.created_at
		 FROM document_chunks c
		 WHERE c.id > $1
		   AND NOT EXISTS (
			SELECT 1 FROM chunk_embeddings e WHERE e.chunk_id = c.id AND e.model_id = $2
		   )
		 ORDER BY c.id
		 LIMIT $3`,
		after, modelID, limit)
	if err != nil {
		return nil, fmt.Errorf("chunks missing vectors: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PgStore) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM document_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *PgStore) CountChunkVectors(ctx context.Context, modelID uuid.UUID) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM chunk_embeddings WHERE model_id = $1`, modelID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunk vectors: %w", err)
	}
	return n, nil
}

func (s *PgStore) UpsertChunkVectors(ctx context.Context, modelID uuid.UUID, chunkIDs []uuid.UUID, vecs [][]float32) error {
	if len(chunkIDs) != len(vecs) {
		return fmt.Errorf("%d chunk ids for %d vectors", len(chunkIDs), len(vecs))
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, id := range chunkIDs {
		// The chunk may have been replaced by a concurrent re-index since
		// the sweep read it; the FK guard skips those instead of failing
		// the batch.
		if _, err := tx.Exec(ctx,
			`INSERT INTO chunk_embeddings (chunk_id, model_id, embedding)
			 SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM document_chunks WHERE id = $1)
			 ON CONFLICT (chunk_id, model_id) DO UPDATE SET embedding = $3`,
			id, modelID, pgvector.NewVector(vecs[i]),
		); err != nil {
			return fmt.Errorf("upsert vector for chunk %s: %w", id, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PgStore) PromoteSecondary(ctx context.Context, secondaryID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE embedding_models SET status = $1 WHERE status = $2`,
		models.ModelStatusRetired, models.ModelStatusPrimary); err != nil {
		return fmt.Errorf("retire primary: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE embedding_models SET status = $1 WHERE id = $2 AND status = $3`,
		models.ModelStatusPrimary, secondaryID, models.ModelStatusSecondary)
	if err != nil {
		return fmt.Errorf("promote secondary: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("promote secondary: model %s is not secondary", secondaryID)
	}

	return tx.Commit(ctx)
}

func (s *PgStore) DeleteRetiredVectors(ctx context.Context, modelID uuid.UUID, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	tag, err := s.db.Exec(ctx,
		`DELETE FROM chunk_embeddings WHERE (chunk_id, model_id) IN (
			SELECT chunk_id, model_id FROM chunk_embeddings WHERE model_id = $1 LIMIT $2
		 )`, modelID, limit)
	if err != nil {
		return 0, fmt.Errorf("delete retired vectors: %w", err)
	}
	removed := int(tag.RowsAffected())
	if removed == 0 {
		if _, err := s.db.Exec(ctx,
			`DELETE FROM embedding_models WHERE id = $1 AND status = $2`,
			modelID, models.ModelStatusRetired); err != nil {
			return 0, fmt.Errorf("delete retired model: %w", err)
		}
	}
	return removed, nil
}
