package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/memsvc/memory/internal/apperr"
	"github.com/memsvc/memory/internal/models"
)

// MemoryStore is the pgx-backed persistence layer for memories (C4).
type MemoryStore struct {
	pool *pgxpool.Pool
}

const memoryColumns = `
	id, user_context, content, content_hash, embedding, embedding_dimension,
	tags, type, source, confidence, importance_score, similarity_threshold,
	decay_rate, access_count, parent_id, relation_type, cluster_id,
	created_at, updated_at, accessed_at, deleted_at, last_decay_update,
	state, decay_score, is_compressed, metadata
`

// Insert stores a new memory row. Callers are expected to have already
// checked FindByHash for the (user_context, content_hash) uniqueness
// invariant; Insert itself surfaces a Conflict error if the unique index
// rejects a concurrent duplicate.
func (s *MemoryStore) Insert(ctx context.Context, m *models.Memory) error {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	`,
		m.ID, m.UserContext, content, m.ContentHash, toVector(m.Embedding), m.EmbeddingDimension,
		m.Tags, m.Type, m.Source, m.Confidence, m.ImportanceScore, m.SimilarityThreshold,
		m.DecayRate, m.AccessCount, m.ParentID, m.RelationType, m.ClusterID,
		m.CreatedAt, m.UpdatedAt, m.AccessedAt, m.DeletedAt, m.LastDecayUpdate,
		m.State, m.DecayScore, m.IsCompressed, metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflictf("memory with this content already exists for user context %q", m.UserContext)
		}
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// GetByID returns a memory by ID, excluding soft-deleted rows.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.Memory, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+memoryColumns+` FROM memories WHERE id = $1 AND deleted_at IS NULL
	`, id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("memory %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// FindByHash looks up the unique (user_context, content_hash) row, returning
// (nil, nil) when absent — the dedup check per §4.8.
func (s *MemoryStore) FindByHash(ctx context.Context, userContext, hash string) (*models.Memory, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE user_context = $1 AND content_hash = $2 AND deleted_at IS NULL
	`, userContext, hash)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find memory by hash: %w", err)
	}
	return m, nil
}

// KnnSearchFilter narrows a nearest-neighbor search.
type KnnSearchFilter struct {
	UserContext string
	Types       []models.MemoryType
	Tags        []string
	States      []models.MemoryState
	Limit       int
}

// KnnSearch returns the k nearest memories by cosine distance, annotated
// with Similarity (1 - distance), ordered closest-first.
func (s *MemoryStore) KnnSearch(ctx context.Context, query []float32, f KnnSearchFilter) ([]*models.Memory, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	sql := `
		SELECT ` + memoryColumns + `, 1 - (embedding <=> $1) AS similarity
		FROM memories
		WHERE deleted_at IS NULL AND embedding IS NOT NULL AND user_context = $2
	`
	args := []any{toVector(query), f.UserContext}
	next := 3

	if len(f.Types) > 0 {
		sql += fmt.Sprintf(" AND type = ANY($%d)", next)
		args = append(args, f.Types)
		next++
	}
	if len(f.Tags) > 0 {
		sql += fmt.Sprintf(" AND tags && $%d", next)
		args = append(args, f.Tags)
		next++
	}
	if len(f.States) > 0 {
		sql += fmt.Sprintf(" AND state = ANY($%d)", next)
		args = append(args, f.States)
		next++
	}
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", next)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}
	defer rows.Close()

	var out []*models.Memory
	for rows.Next() {
		m, sim, err := scanMemoryWithSimilarity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		m.Similarity = sim
		out = append(out, m)
	}
	return out, rows.Err()
}

// BumpAccess increments access_count and refreshes accessed_at, returning
// the new access_count.
func (s *MemoryStore) BumpAccess(ctx context.Context, id string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		UPDATE memories SET access_count = access_count + 1, accessed_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING access_count
	`, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFoundf("memory %q not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("bump access: %w", err)
	}
	return count, nil
}

// SoftDelete marks a memory deleted without removing the row, preserving it
// for audit and for relation integrity.
func (s *MemoryStore) SoftDelete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memories SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("soft delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("memory %q not found", id)
	}
	return nil
}

// Update applies a partial field update using the teacher's dynamic-SET-list
// idiom, generalized to pgx's $n placeholders.
type UpdateFields struct {
	Content             *any
	Tags                []string
	Type                *models.MemoryType
	Confidence          *float64
	ImportanceScore     *float64
	SimilarityThreshold *float64
	Metadata            map[string]any
	State               *models.MemoryState
	DecayScore          *float64
	IsCompressed        *bool
	ClusterID           *string
	Embedding           []float32
	EmbeddingDimension  *int
	ContentHash         *string
	Source              *string
}

func (s *MemoryStore) Update(ctx context.Context, id string, f UpdateFields) error {
	sets := []string{}
	args := []any{}
	next := 1
	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, next))
		args = append(args, val)
		next++
	}

	if f.Content != nil {
		raw, err := json.Marshal(*f.Content)
		if err != nil {
			return fmt.Errorf("marshal content: %w", err)
		}
		add("content", raw)
	}
	if f.ContentHash != nil {
		add("content_hash", *f.ContentHash)
	}
	if f.Source != nil {
		add("source", *f.Source)
	}
	if f.Tags != nil {
		add("tags", f.Tags)
	}
	if f.Type != nil {
		add("type", *f.Type)
	}
	if f.Confidence != nil {
		add("confidence", *f.Confidence)
	}
	if f.ImportanceScore != nil {
		add("importance_score", *f.ImportanceScore)
	}
	if f.SimilarityThreshold != nil {
		add("similarity_threshold", *f.SimilarityThreshold)
	}
	if f.Metadata != nil {
		raw, err := json.Marshal(f.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		add("metadata", raw)
	}
	if f.State != nil {
		add("state", *f.State)
	}
	if f.DecayScore != nil {
		add("decay_score", *f.DecayScore)
	}
	if f.IsCompressed != nil {
		add("is_compressed", *f.IsCompressed)
	}
	if f.ClusterID != nil {
		add("cluster_id", *f.ClusterID)
	}
	if f.Embedding != nil {
		add("embedding", toVector(f.Embedding))
	}
	if f.EmbeddingDimension != nil {
		add("embedding_dimension", *f.EmbeddingDimension)
	}

	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d AND deleted_at IS NULL",
		joinSets(sets), next)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("memory %q not found", id)
	}
	return nil
}

// ListFilter narrows a List query.
type ListFilter struct {
	UserContext string
	Type        *models.MemoryType
	Tags        []string
	State       *models.MemoryState
	Limit       int
	Offset      int
}

// List returns memories matching f ordered by recency, plus the total
// matching row count for pagination.
func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]*models.Memory, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	where := "deleted_at IS NULL AND user_context = $1"
	args := []any{f.UserContext}
	next := 2

	if f.Type != nil {
		where += fmt.Sprintf(" AND type = $%d", next)
		args = append(args, *f.Type)
		next++
	}
	if len(f.Tags) > 0 {
		where += fmt.Sprintf(" AND tags && $%d", next)
		args = append(args, f.Tags)
		next++
	}
	if f.State != nil {
		where += fmt.Sprintf(" AND state = $%d", next)
		args = append(args, *f.State)
		next++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM memories WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count memories: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, f.Offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM memories WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d
	`, memoryColumns, where, next, next+1), listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan memory row: %w", err)
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// Stats aggregates counts and averages for the stats tool.
type Stats struct {
	TotalMemories   int
	ByType          map[string]int
	ByState         map[string]int
	AvgDecayScore   float64
	AvgAccessCount  float64
	CompressedCount int
	ClusteredCount  int
}

func (s *MemoryStore) Stats(ctx context.Context, userContext string) (*Stats, error) {
	st := &Stats{ByType: map[string]int{}, ByState: map[string]int{}}

	err := s.pool.QueryRow(ctx, `
		SELECT count(*), coalesce(avg(decay_score), 0), coalesce(avg(access_count), 0),
		       count(*) FILTER (WHERE is_compressed), count(*) FILTER (WHERE cluster_id IS NOT NULL)
		FROM memories WHERE user_context = $1 AND deleted_at IS NULL
	`, userContext).Scan(&st.TotalMemories, &st.AvgDecayScore, &st.AvgAccessCount, &st.CompressedCount, &st.ClusteredCount)
	if err != nil {
		return nil, fmt.Errorf("stats aggregate: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT type, count(*) FROM memories WHERE user_context = $1 AND deleted_at IS NULL GROUP BY type
	`, userContext)
	if err != nil {
		return nil, fmt.Errorf("stats by type: %w", err)
	}
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			rows.Close()
			return nil, err
		}
		st.ByType[t] = c
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, `
		SELECT state, count(*) FROM memories WHERE user_context = $1 AND deleted_at IS NULL GROUP BY state
	`, userContext)
	if err != nil {
		return nil, fmt.Errorf("stats by state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, err
		}
		st.ByState[t] = c
	}
	return st, rows.Err()
}

// DistinctTags returns every tag currently in use for a user context.
func (s *MemoryStore) DistinctTags(ctx context.Context, userContext string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT unnest(tags) AS tag FROM memories
		WHERE user_context = $1 AND deleted_at IS NULL ORDER BY tag
	`, userContext)
	if err != nil {
		return nil, fmt.Errorf("distinct tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// TagCounts returns how many live memories carry each tag in a user
// context, backing the tags resource endpoint.
func (s *MemoryStore) TagCounts(ctx context.Context, userContext string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tag, count(*) FROM memories, unnest(tags) AS tag
		WHERE user_context = $1 AND deleted_at IS NULL GROUP BY tag ORDER BY tag
	`, userContext)
	if err != nil {
		return nil, fmt.Errorf("tag counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, err
		}
		out[t] = c
	}
	return out, rows.Err()
}

// DistinctTypes lists every memory type in use for a user context, backing
// the types resource endpoint.
func (s *MemoryStore) DistinctTypes(ctx context.Context, userContext string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT type FROM memories WHERE user_context = $1 AND deleted_at IS NULL ORDER BY type
	`, userContext)
	if err != nil {
		return nil, fmt.Errorf("distinct types: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DistinctUserContexts lists every user context with at least one live
// memory, backing the periodic decay schedule's per-context fan-out.
func (s *MemoryStore) DistinctUserContexts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT user_context FROM memories WHERE deleted_at IS NULL ORDER BY user_context
	`)
	if err != nil {
		return nil, fmt.Errorf("distinct user contexts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uc string
		if err := rows.Scan(&uc); err != nil {
			return nil, err
		}
		out = append(out, uc)
	}
	return out, rows.Err()
}

// ForDecayScan streams active/dormant memories in batches for the decay
// worker, ordered by last_decay_update so the oldest-scanned rows surface
// first each pass.
func (s *MemoryStore) ForDecayScan(ctx context.Context, batchSize int) ([]*models.Memory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE deleted_at IS NULL AND state IN ('active', 'dormant')
		ORDER BY last_decay_update ASC
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("decay scan query: %w", err)
	}
	defer rows.Close()

	var out []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ForClustering returns the non-deleted active or dormant memories with
// embeddings in a user context, for clustering passes.
func (s *MemoryStore) ForClustering(ctx context.Context, userContext string) ([]*models.Memory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE user_context = $1 AND deleted_at IS NULL AND embedding IS NOT NULL
		AND state IN ('active', 'dormant')
	`, userContext)
	if err != nil {
		return nil, fmt.Errorf("clustering candidates query: %w", err)
	}
	defer rows.Close()

	var out []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ChildrenOf returns the non-deleted memories in userContext whose
// parent_id is parentID, backing the parent_of side of includeParentLinks
// traversal.
func (s *MemoryStore) ChildrenOf(ctx context.Context, parentID, userContext string) ([]*models.Memory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE parent_id = $1 AND user_context = $2 AND deleted_at IS NULL
	`, parentID, userContext)
	if err != nil {
		return nil, fmt.Errorf("children query: %w", err)
	}
	defer rows.Close()

	var out []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// HardDeleteExpired permanently removes memories that have been expired and
// soft-deleted for longer than retentionDays, edges first (foreign keys
// cascade on memories, but deleting edges explicitly keeps the delete order
// explicit per §4.10's "edges first" contract).
func (s *MemoryStore) HardDeleteExpired(ctx context.Context, retentionDays, batch int) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM memories
		WHERE state = 'expired' AND deleted_at IS NOT NULL
		AND deleted_at < now() - ($1 || ' days')::interval
		LIMIT $2
	`, retentionDays, batch)
	if err != nil {
		return 0, fmt.Errorf("find expired memories: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin retention tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM memory_relations WHERE from_memory_id = ANY($1) OR to_memory_id = ANY($1)
	`, ids); err != nil {
		return 0, fmt.Errorf("delete expired relations: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete expired memories: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit retention tx: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

func toVector(v []float32) *pgvector.Vector {
	if v == nil {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*models.Memory, error) {
	m, _, err := scanRow(row, false)
	return m, err
}

func scanMemoryWithSimilarity(row rowScanner) (*models.Memory, float64, error) {
	return scanRow(row, true)
}

func scanRow(row rowScanner, withSimilarity bool) (*models.Memory, float64, error) {
	var m models.Memory
	var content, metadata []byte
	var vec *pgvector.Vector
	var relationType *string
	var similarity float64

	dest := []any{
		&m.ID, &m.UserContext, &content, &m.ContentHash, &vec, &m.EmbeddingDimension,
		&m.Tags, &m.Type, &m.Source, &m.Confidence, &m.ImportanceScore, &m.SimilarityThreshold,
		&m.DecayRate, &m.AccessCount, &m.ParentID, &relationType, &m.ClusterID,
		&m.CreatedAt, &m.UpdatedAt, &m.AccessedAt, &m.DeletedAt, &m.LastDecayUpdate,
		&m.State, &m.DecayScore, &m.IsCompressed, &metadata,
	}
	if withSimilarity {
		dest = append(dest, &similarity)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, 0, err
	}

	if len(content) > 0 {
		if err := json.Unmarshal(content, &m.Content); err != nil {
			return nil, 0, fmt.Errorf("unmarshal content: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, 0, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if vec != nil {
		m.Embedding = vec.Slice()
	}
	if relationType != nil {
		rt := models.RelationType(*relationType)
		m.RelationType = &rt
	}

	return &m, similarity, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
