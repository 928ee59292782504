package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memsvc/memory/internal/apperr"
	"github.com/memsvc/memory/internal/models"
)

// RelationStore is the pgx-backed persistence layer for directed,
// typed, weighted edges between memories (C9's backing store).
type RelationStore struct {
	pool *pgxpool.Pool
}

const relationColumns = `id, from_memory_id, to_memory_id, relation_type, strength, created_at, updated_at`

// Upsert creates a relation or, if one already exists between the same
// ordered pair, updates its type and strength — mirroring the teacher's
// CreateOrStrengthen upsert idiom, generalized from "strengthen by delta"
// to "set to the caller's requested strength" per the tool contract.
func (s *RelationStore) Upsert(ctx context.Context, r *models.MemoryRelation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memory_relations (`+relationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (from_memory_id, to_memory_id) DO UPDATE SET
			relation_type = excluded.relation_type,
			strength = excluded.strength
	`, r.ID, r.FromMemoryID, r.ToMemoryID, r.RelationType, r.Strength, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert relation: %w", err)
	}
	return nil
}

// Delete removes the relation between from and to, in that direction only.
func (s *RelationStore) Delete(ctx context.Context, fromID, toID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM memory_relations WHERE from_memory_id = $1 AND to_memory_id = $2
	`, fromID, toID)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("no relation from %q to %q", fromID, toID)
	}
	return nil
}

// Outgoing returns the edges leaving id, optionally filtered by type.
func (s *RelationStore) Outgoing(ctx context.Context, id string, relType *models.RelationType) ([]*models.MemoryRelation, error) {
	return s.listByDirection(ctx, "from_memory_id", id, relType)
}

// Incoming returns the edges arriving at id, optionally filtered by type.
func (s *RelationStore) Incoming(ctx context.Context, id string, relType *models.RelationType) ([]*models.MemoryRelation, error) {
	return s.listByDirection(ctx, "to_memory_id", id, relType)
}

func (s *RelationStore) listByDirection(ctx context.Context, col, id string, relType *models.RelationType) ([]*models.MemoryRelation, error) {
	sql := `SELECT ` + relationColumns + ` FROM memory_relations WHERE ` + col + ` = $1`
	args := []any{id}
	if relType != nil {
		sql += " AND relation_type = $2"
		args = append(args, *relType)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var out []*models.MemoryRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OutgoingInContext is Outgoing, additionally joined against memories on
// both endpoints so an edge whose other endpoint has been soft-deleted or
// belongs to a different user_context is excluded.
func (s *RelationStore) OutgoingInContext(ctx context.Context, id, userContext string, relType *models.RelationType) ([]*models.MemoryRelation, error) {
	return s.listByDirectionJoined(ctx, "from_memory_id", "to_memory_id", id, userContext, relType)
}

// IncomingInContext is Incoming, additionally joined against memories on
// both endpoints so an edge whose other endpoint has been soft-deleted or
// belongs to a different user_context is excluded.
func (s *RelationStore) IncomingInContext(ctx context.Context, id, userContext string, relType *models.RelationType) ([]*models.MemoryRelation, error) {
	return s.listByDirectionJoined(ctx, "to_memory_id", "from_memory_id", id, userContext, relType)
}

func (s *RelationStore) listByDirectionJoined(ctx context.Context, col, otherCol, id, userContext string, relType *models.RelationType) ([]*models.MemoryRelation, error) {
	sql := `
		SELECT r.id, r.from_memory_id, r.to_memory_id, r.relation_type, r.strength, r.created_at, r.updated_at
		FROM memory_relations r
		JOIN memories m1 ON m1.id = r.` + col + `
		JOIN memories m2 ON m2.id = r.` + otherCol + `
		WHERE r.` + col + ` = $1
			AND m1.user_context = $2 AND m1.deleted_at IS NULL
			AND m2.user_context = $2 AND m2.deleted_at IS NULL`
	args := []any{id, userContext}
	if relType != nil {
		sql += " AND r.relation_type = $3"
		args = append(args, *relType)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list relations in context: %w", err)
	}
	defer rows.Close()

	var out []*models.MemoryRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the relation between from and to, or nil if none exists.
func (s *RelationStore) Get(ctx context.Context, fromID, toID string) (*models.MemoryRelation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+relationColumns+` FROM memory_relations WHERE from_memory_id = $1 AND to_memory_id = $2
	`, fromID, toID)
	r, err := scanRelation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get relation: %w", err)
	}
	return r, nil
}

// Neighbors returns one entry per edge touching id, in either direction,
// naming the other endpoint with the edge's type and strength; a memory
// joined to id by edges both ways appears once per edge. It backs graph
// search expansion and the decay engine's degree count.
func (s *RelationStore) Neighbors(ctx context.Context, id string) ([]*models.RelatedMemory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_memory_id AS neighbor, relation_type, strength FROM memory_relations WHERE from_memory_id = $1
		UNION ALL
		SELECT from_memory_id AS neighbor, relation_type, strength FROM memory_relations WHERE to_memory_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("neighbors query: %w", err)
	}
	defer rows.Close()

	var out []*models.RelatedMemory
	for rows.Next() {
		var rm models.RelatedMemory
		if err := rows.Scan(&rm.RelatedID, &rm.Type, &rm.Strength); err != nil {
			return nil, err
		}
		out = append(out, &rm)
	}
	return out, rows.Err()
}

// DegreeCounts returns the total edge count (in + out) per memory ID, for
// Traverser.TopConnectors.
func (s *RelationStore) DegreeCounts(ctx context.Context, userContext string, limit int) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, count(r.id) AS degree
		FROM memories m
		LEFT JOIN memory_relations r ON r.from_memory_id = m.id OR r.to_memory_id = m.id
		WHERE m.user_context = $1 AND m.deleted_at IS NULL
		GROUP BY m.id
		ORDER BY degree DESC
		LIMIT $2
	`, userContext, limit)
	if err != nil {
		return nil, fmt.Errorf("degree counts query: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var id string
		var degree int
		if err := rows.Scan(&id, &degree); err != nil {
			return nil, err
		}
		out[id] = degree
	}
	return out, rows.Err()
}

// Count returns the total number of relation edges for a user context.
// Nothing in the module calls it at present.
func (s *RelationStore) Count(ctx context.Context, userContext string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM memory_relations r
		JOIN memories m ON m.id = r.from_memory_id
		WHERE m.user_context = $1 AND m.deleted_at IS NULL
	`, userContext).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count relations: %w", err)
	}
	return count, nil
}

// ForUserContext lists every relation edge touching a memory in userContext,
// backing the relationships resource endpoint.
func (s *RelationStore) ForUserContext(ctx context.Context, userContext string) ([]*models.MemoryRelation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+relationColumns+` FROM memory_relations r
		JOIN memories m ON m.id = r.from_memory_id
		WHERE m.user_context = $1 AND m.deleted_at IS NULL
		ORDER BY r.created_at DESC
	`, userContext)
	if err != nil {
		return nil, fmt.Errorf("list relations for user context: %w", err)
	}
	defer rows.Close()

	var out []*models.MemoryRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRelation(row rowScanner) (*models.MemoryRelation, error) {
	var r models.MemoryRelation
	if err := row.Scan(&r.ID, &r.FromMemoryID, &r.ToMemoryID, &r.RelationType, &r.Strength, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
