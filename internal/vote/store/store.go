// Package store persists the vote ledger and the per-entity aggregates. Every
// method joins the transaction carried by ctx when there is one.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cityrater/internal/vote/models"
	"cityrater/pkg/platform/sentinel"
	"cityrater/pkg/platform/tx"
)

// Store is the SQL ledger and aggregate store. The SQL is portable between
// Postgres and SQLite.
type Store struct {
	db *sql.DB
}

// New constructs a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) tx.Execer {
	return tx.ExecerFrom(ctx, s.db)
}

// column maps a vote type to its aggregate column. Column names never come
// from input.
func column(t models.VoteType) (string, error) {
	switch t {
	case models.VoteLiked:
		return "likes", nil
	case models.VoteDisliked:
		return "dislikes", nil
	case models.VoteDontKnow:
		return "dont_know", nil
	}
	return "", fmt.Errorf("unknown vote type %q", t)
}

// InsertVote adds a ledger row. Returns sentinel.ErrConflict when the user
// already holds a vote for the entity.
func (s *Store) InsertVote(ctx context.Context, v models.Vote) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO votes (id, user_key, entity_kind, entity_id, vote_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_key, entity_kind, entity_id) DO NOTHING`,
		uuid.NewString(), v.UserKey, string(v.Kind), v.EntityID, string(v.Type),
	)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert vote rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert vote: %w", sentinel.ErrConflict)
	}
	return nil
}

// FindVote returns the user's vote type for the entity.
func (s *Store) FindVote(ctx context.Context, userKey string, kind models.EntityKind, entityID string) (models.VoteType, error) {
	var vt string
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT vote_type FROM votes
		WHERE user_key = $1 AND entity_kind = $2 AND entity_id = $3`,
		userKey, string(kind), entityID,
	).Scan(&vt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find vote: %w", err)
	}
	return models.VoteType(vt), nil
}

// SwapVoteType changes a vote from one type to another. The update only
// applies while the row still holds from; otherwise another writer got there
// first and sentinel.ErrConcurrentUpdate is returned.
func (s *Store) SwapVoteType(ctx context.Context, userKey string, kind models.EntityKind, entityID string, from, to models.VoteType) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE votes SET vote_type = $1, updated_at = CURRENT_TIMESTAMP
		WHERE user_key = $2 AND entity_kind = $3 AND entity_id = $4 AND vote_type = $5`,
		string(to), userKey, string(kind), entityID, string(from),
	)
	if err != nil {
		return fmt.Errorf("swap vote: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap vote rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("swap vote: %w", sentinel.ErrConcurrentUpdate)
	}
	return nil
}

// IncrementAggregate adds one to the counter for t, creating the aggregate
// row on first use. The upsert is a single atomic statement.
func (s *Store) IncrementAggregate(ctx context.Context, kind models.EntityKind, entityID string, t models.VoteType) error {
	col, err := column(t)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO aggregates (entity_kind, entity_id, %[1]s) VALUES ($1, $2, 1)
		ON CONFLICT (entity_kind, entity_id)
		DO UPDATE SET %[1]s = aggregates.%[1]s + 1, updated_at = CURRENT_TIMESTAMP`, col)
	if _, err := s.execer(ctx).ExecContext(ctx, query, string(kind), entityID); err != nil {
		return fmt.Errorf("increment %s: %w", col, err)
	}
	return nil
}

// DecrementAggregate subtracts one from the counter for t. A counter that is
// already zero (or a missing aggregate row) means the ledger and aggregates
// disagree; that returns sentinel.ErrInvariantViolation instead of clamping.
func (s *Store) DecrementAggregate(ctx context.Context, kind models.EntityKind, entityID string, t models.VoteType) error {
	col, err := column(t)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE aggregates SET %[1]s = %[1]s - 1, updated_at = CURRENT_TIMESTAMP
		WHERE entity_kind = $1 AND entity_id = $2 AND %[1]s > 0`, col)
	res, err := s.execer(ctx).ExecContext(ctx, query, string(kind), entityID)
	if err != nil {
		return fmt.Errorf("decrement %s: %w", col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement %s rows affected: %w", col, err)
	}
	if n == 0 {
		return fmt.Errorf("decrement %s for %s/%s: %w", col, kind, entityID, sentinel.ErrInvariantViolation)
	}
	return nil
}

// GetAggregate loads one aggregate row.
func (s *Store) GetAggregate(ctx context.Context, kind models.EntityKind, entityID string) (models.Aggregate, error) {
	a := models.Aggregate{Kind: kind, EntityID: entityID}
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT likes, dislikes, dont_know FROM aggregates
		WHERE entity_kind = $1 AND entity_id = $2`,
		string(kind), entityID,
	).Scan(&a.Likes, &a.Dislikes, &a.DontKnow)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Aggregate{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Aggregate{}, fmt.Errorf("get aggregate: %w", err)
	}
	return a, nil
}

// ListAggregates returns every aggregate row of kind ordered by entity id.
func (s *Store) ListAggregates(ctx context.Context, kind models.EntityKind) ([]models.Aggregate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT entity_id, likes, dislikes, dont_know FROM aggregates
		WHERE entity_kind = $1
		ORDER BY entity_id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Aggregate
	for rows.Next() {
		a := models.Aggregate{Kind: kind}
		if err := rows.Scan(&a.EntityID, &a.Likes, &a.Dislikes, &a.DontKnow); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return out, nil
}

// ListUserVotes returns the user's votes of kind ordered by entity id.
func (s *Store) ListUserVotes(ctx context.Context, userKey string, kind models.EntityKind) ([]models.Vote, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT entity_id, vote_type FROM votes
		WHERE user_key = $1 AND entity_kind = $2
		ORDER BY entity_id`,
		userKey, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list user votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Vote
	for rows.Next() {
		v := models.Vote{UserKey: userKey, Kind: kind}
		var vt string
		if err := rows.Scan(&v.EntityID, &vt); err != nil {
			return nil, fmt.Errorf("scan user vote: %w", err)
		}
		v.Type = models.VoteType(vt)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user votes: %w", err)
	}
	return out, nil
}

// KindStats summarises the aggregates and voters of kind.
func (s *Store) KindStats(ctx context.Context, kind models.EntityKind) (models.KindStats, error) {
	var st models.KindStats
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(likes), 0), COALESCE(SUM(dislikes), 0), COALESCE(SUM(dont_know), 0)
		FROM aggregates WHERE entity_kind = $1`,
		string(kind),
	).Scan(&st.Entities, &st.Likes, &st.Dislikes, &st.DontKnow)
	if err != nil {
		return models.KindStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	err = s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_key) FROM votes WHERE entity_kind = $1`,
		string(kind),
	).Scan(&st.Voters)
	if err != nil {
		return models.KindStats{}, fmt.Errorf("voter stats: %w", err)
	}
	return st, nil
}

// CountVoters counts distinct users with at least one vote of any kind.
func (s *Store) CountVoters(ctx context.Context) (int, error) {
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(DISTINCT user_key) FROM votes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count voters: %w", err)
	}
	return n, nil
}
