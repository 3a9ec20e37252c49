// Package store persists user records. Methods join the transaction carried
// by ctx when there is one.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cityrater/internal/identity/models"
	"cityrater/pkg/platform/sentinel"
	"cityrater/pkg/platform/tx"
)

// Store is the SQL user registry.
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

const userColumns = `id, COALESCE(telegram_id, ''), COALESCE(user_key, ''), created_at`

func scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.UserKey, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, sentinel.ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

// FindByTelegramID returns the user linked to the Telegram account.
func (s *Store) FindByTelegramID(ctx context.Context, telegramID string) (models.User, error) {
	u, err := scanUser(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
	if err != nil {
		return models.User{}, fmt.Errorf("find user by telegram id: %w", err)
	}
	return u, nil
}

// FindByUserKey returns the user that owns the key.
func (s *Store) FindByUserKey(ctx context.Context, userKey string) (models.User, error) {
	u, err := scanUser(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_key = $1`, userKey))
	if err != nil {
		return models.User{}, fmt.Errorf("find user by key: %w", err)
	}
	return u, nil
}

// Exists reports whether a user owns the key.
func (s *Store) Exists(ctx context.Context, userKey string) (bool, error) {
	var one int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE user_key = $1`, userKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user key: %w", err)
	}
	return true, nil
}

// Insert adds a user. Returns sentinel.ErrConflict when the Telegram id or
// the key is already taken.
func (s *Store) Insert(ctx context.Context, u models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO users (id, telegram_id, user_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
		u.ID, nullable(u.TelegramID), nullable(u.UserKey), u.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert user: %w", sentinel.ErrConflict)
	}
	return nil
}

// LinkTelegram attaches a Telegram id to a user that has none. Returns
// sentinel.ErrConcurrentUpdate when the user was linked in the meantime.
func (s *Store) LinkTelegram(ctx context.Context, userID, telegramID string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE users SET telegram_id = $1
		WHERE id = $2 AND telegram_id IS NULL`,
		telegramID, userID,
	)
	if err != nil {
		return fmt.Errorf("link telegram id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link telegram id rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("link telegram id: %w", sentinel.ErrConcurrentUpdate)
	}
	return nil
}

// EnsureAnonymous registers a key without a Telegram identity. It reports
// whether a row was created.
func (s *Store) EnsureAnonymous(ctx context.Context, userKey string) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO users (id, user_key)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		uuid.NewString(), userKey,
	)
	if err != nil {
		return false, fmt.Errorf("ensure anonymous user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure anonymous user rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteByTelegramPrefix removes users whose Telegram id starts with prefix.
func (s *Store) DeleteByTelegramPrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM users WHERE telegram_id LIKE $1 ESCAPE '\'`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return 0, fmt.Errorf("delete users by telegram prefix: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete users rows affected: %w", err)
	}
	return n, nil
}

// Count returns the number of user records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
