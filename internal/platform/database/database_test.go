package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/sentinel"
	"cityrater/pkg/platform/tx"
)

type DatabaseSuite struct {
	suite.Suite
	ctx        context.Context
	transactor *Transactor
}

func TestDatabaseSuite(t *testing.T) {
	suite.Run(t, new(DatabaseSuite))
}

func (s *DatabaseSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := OpenMemory(s.ctx, s.T().Name())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.transactor = NewTransactor(db, WithMaxAttempts(3))
}

func (s *DatabaseSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(Migrate(s.ctx, s.transactor.DB()))

	var count int
	err := s.transactor.DB().QueryRowContext(s.ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count)
	s.Require().NoError(err)

	migrations, err := Migrations()
	s.Require().NoError(err)
	s.Equal(len(migrations), count)
}

func (s *DatabaseSuite) TestSchemaRejectsNegativeCounters() {
	_, err := s.transactor.DB().ExecContext(s.ctx,
		`INSERT INTO aggregates (entity_kind, entity_id, likes) VALUES ('city', 'paris', -1)`)
	s.Error(err)
}

func (s *DatabaseSuite) TestSchemaRejectsUnknownVoteType() {
	_, err := s.transactor.DB().ExecContext(s.ctx,
		`INSERT INTO votes (id, user_key, entity_kind, entity_id, vote_type) VALUES ('v1', 'u1', 'city', 'paris', 'love')`)
	s.Error(err)
}

func (s *DatabaseSuite) TestRunInTxCommits() {
	err := s.transactor.RunInTx(s.ctx, func(ctx context.Context) error {
		_, ok := tx.From(ctx)
		s.True(ok)
		_, err := tx.ExecerFrom(ctx, s.transactor.DB()).ExecContext(ctx,
			`INSERT INTO aggregates (entity_kind, entity_id, likes) VALUES ('city', 'paris', 1)`)
		return err
	})
	s.Require().NoError(err)

	var likes int
	s.Require().NoError(s.transactor.DB().QueryRowContext(s.ctx,
		`SELECT likes FROM aggregates WHERE entity_id = 'paris'`).Scan(&likes))
	s.Equal(1, likes)
}

func (s *DatabaseSuite) TestRunInTxRollsBackOnError() {
	boom := errors.New("boom")
	err := s.transactor.RunInTx(s.ctx, func(ctx context.Context) error {
		_, err := tx.ExecerFrom(ctx, s.transactor.DB()).ExecContext(ctx,
			`INSERT INTO aggregates (entity_kind, entity_id, likes) VALUES ('city', 'rome', 1)`)
		s.Require().NoError(err)
		return boom
	})
	s.ErrorIs(err, boom)

	var count int
	s.Require().NoError(s.transactor.DB().QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM aggregates WHERE entity_id = 'rome'`).Scan(&count))
	s.Zero(count)
}

func (s *DatabaseSuite) TestRunInTxRetriesConcurrentUpdate() {
	var attempts atomic.Int32
	err := s.transactor.RunInTx(s.ctx, func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return fmt.Errorf("swap vote: %w", sentinel.ErrConcurrentUpdate)
		}
		return nil
	})
	s.Require().NoError(err)
	s.Equal(int32(3), attempts.Load())
}

func (s *DatabaseSuite) TestRunInTxGivesUpAfterMaxAttempts() {
	var attempts atomic.Int32
	err := s.transactor.RunInTx(s.ctx, func(ctx context.Context) error {
		attempts.Add(1)
		return sentinel.ErrConcurrentUpdate
	})
	s.ErrorIs(err, sentinel.ErrConcurrentUpdate)
	s.Equal(int32(3), attempts.Load())
}

func (s *DatabaseSuite) TestRunInTxDoesNotRetryOtherErrors() {
	var attempts atomic.Int32
	err := s.transactor.RunInTx(s.ctx, func(ctx context.Context) error {
		attempts.Add(1)
		return sentinel.ErrConflict
	})
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Equal(int32(1), attempts.Load())
}

func (s *DatabaseSuite) TestRunInTxJoinsOuterTransaction() {
	var inner int
	err := s.transactor.RunInTx(s.ctx, func(ctx context.Context) error {
		outer, _ := tx.From(ctx)
		return s.transactor.RunInTx(ctx, func(ctx context.Context) error {
			got, _ := tx.From(ctx)
			s.Same(outer, got)
			inner++
			return nil
		})
	})
	s.Require().NoError(err)
	s.Equal(1, inner)
}

func (s *DatabaseSuite) TestRunInTxCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := s.transactor.RunInTx(ctx, func(ctx context.Context) error { return nil })
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *DatabaseSuite) TestRunInTxIgnoresIsolationOnSQLite() {
	ctx := tx.WithIsolation(s.ctx, sql.LevelSerializable)
	s.Equal(sql.LevelSerializable, tx.IsolationFrom(ctx))
	s.Equal(sql.LevelDefault, tx.IsolationFrom(s.ctx))

	called := false
	err := s.transactor.RunInTx(ctx, func(ctx context.Context) error {
		_, ok := tx.From(ctx)
		called = ok
		return nil
	})
	s.Require().NoError(err)
	s.True(called)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", sentinel.ErrConcurrentUpdate)))
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.True(t, IsRetryable(fmt.Errorf("commit: %w", &pq.Error{Code: "40P01"})))
	assert.False(t, IsRetryable(&pq.Error{Code: "23505"}))
	assert.False(t, IsRetryable(sentinel.ErrNotFound))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
}
