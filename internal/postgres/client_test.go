package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClient(db, logger.NewNopLogger()), mock
}

func TestWithTxCommitsAndBindsTransaction(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE memberships").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := c.WithTx(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, c.TxFromContext(ctx))
		// nested calls reuse the outer transaction
		return c.WithTx(ctx, func(ctx context.Context) error {
			_, err := c.Writer(ctx).ExecContext(ctx, "UPDATE memberships SET is_active = false")
			return err
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := c.WithTx(context.Background(), func(ctx context.Context) error {
		return ierr.NewError("boom").Mark(ierr.ErrInvalidOperation)
	})

	assert.True(t, ierr.IsInvalidOperation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxOptionsNestedInWithTx(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectCommit()

	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := c.WithTx(context.Background(), func(outer context.Context) error {
		return c.WithTxOptions(outer, opts, func(ctx context.Context) error {
			assert.Same(t, c.TxFromContext(outer), c.TxFromContext(ctx))
			var n int
			return c.Reader(ctx).QueryRowContext(ctx, "SELECT 1").Scan(&n)
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockKey(t *testing.T) {
	t.Run("outside transaction", func(t *testing.T) {
		c, _ := newMockClient(t)
		err := c.LockKey(context.Background(), types.LockRequest{Key: "k"})
		assert.Error(t, err)
	})

	t.Run("waits with lock_timeout", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = 30000")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
			WithArgs("k").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := c.WithTx(context.Background(), func(ctx context.Context) error {
			return c.LockKey(ctx, types.LockRequest{Key: "k"})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("timeout maps to already exists", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("pg_advisory_xact_lock").WillReturnError(&pq.Error{Code: pgLockNotAvailable})
		mock.ExpectRollback()

		err := c.WithTx(context.Background(), func(ctx context.Context) error {
			return c.LockKey(ctx, types.LockRequest{Key: "k", Timeout: lo.ToPtr(time.Second)})
		})
		assert.True(t, ierr.IsAlreadyExists(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fail fast when held", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectBegin()
		mock.ExpectQuery("pg_try_advisory_xact_lock").
			WithArgs("k").
			WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(false))
		mock.ExpectRollback()

		err := c.WithTx(context.Background(), func(ctx context.Context) error {
			return c.LockKey(ctx, types.LockRequest{Key: "k", Timeout: lo.ToPtr(time.Duration(0))})
		})
		assert.True(t, ierr.IsAlreadyExists(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
