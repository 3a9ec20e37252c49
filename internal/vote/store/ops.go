package store

import (
	"context"
	"fmt"

	"cityrater/internal/vote/models"
)

// LedgerCounts derives aggregates of kind directly from the ledger.
func (s *Store) LedgerCounts(ctx context.Context, kind models.EntityKind) ([]models.Aggregate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT entity_id,
			SUM(CASE WHEN vote_type = 'liked' THEN 1 ELSE 0 END),
			SUM(CASE WHEN vote_type = 'disliked' THEN 1 ELSE 0 END),
			SUM(CASE WHEN vote_type = 'dont_know' THEN 1 ELSE 0 END)
		FROM votes
		WHERE entity_kind = $1
		GROUP BY entity_id
		ORDER BY entity_id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Aggregate
	for rows.Next() {
		a := models.Aggregate{Kind: kind}
		if err := rows.Scan(&a.EntityID, &a.Likes, &a.Dislikes, &a.DontKnow); err != nil {
			return nil, fmt.Errorf("scan ledger count: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger counts: %w", err)
	}
	return out, nil
}

// PutAggregate overwrites the counters of one aggregate row.
func (s *Store) PutAggregate(ctx context.Context, a models.Aggregate) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO aggregates (entity_kind, entity_id, likes, dislikes, dont_know)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_kind, entity_id)
		DO UPDATE SET likes = excluded.likes, dislikes = excluded.dislikes,
			dont_know = excluded.dont_know, updated_at = CURRENT_TIMESTAMP`,
		string(a.Kind), a.EntityID, a.Likes, a.Dislikes, a.DontKnow,
	)
	if err != nil {
		return fmt.Errorf("put aggregate: %w", err)
	}
	return nil
}

// DeleteAggregate removes one aggregate row.
func (s *Store) DeleteAggregate(ctx context.Context, kind models.EntityKind, entityID string) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM aggregates WHERE entity_kind = $1 AND entity_id = $2`,
		string(kind), entityID,
	)
	if err != nil {
		return fmt.Errorf("delete aggregate: %w", err)
	}
	return nil
}

// DeleteShadowedVotes drops votes on oldID cast by users who also voted on
// newID, so re-pointing oldID to newID cannot break per-user uniqueness.
func (s *Store) DeleteShadowedVotes(ctx context.Context, kind models.EntityKind, oldID, newID string) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM votes
		WHERE entity_kind = $1 AND entity_id = $2
		AND user_key IN (
			SELECT user_key FROM votes WHERE entity_kind = $1 AND entity_id = $3
		)`,
		string(kind), oldID, newID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete shadowed votes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete shadowed votes rows affected: %w", err)
	}
	return n, nil
}

// MoveVotes re-points every vote on oldID to newID.
func (s *Store) MoveVotes(ctx context.Context, kind models.EntityKind, oldID, newID string) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE votes SET entity_id = $3, updated_at = CURRENT_TIMESTAMP
		WHERE entity_kind = $1 AND entity_id = $2`,
		string(kind), oldID, newID,
	)
	if err != nil {
		return 0, fmt.Errorf("move votes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("move votes rows affected: %w", err)
	}
	return n, nil
}
