package postgres

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/lib/pq"
)

// pgLockNotAvailable is SQLSTATE lock_not_available, raised when lock_timeout expires.
const pgLockNotAvailable = "55P03"

// LockKey takes a transaction scoped advisory lock on req.Key, waiting up to
// req.GetTimeout(). A non-positive timeout fails fast. The lock is released on
// commit or rollback, so LockKey must run inside WithTx.
func (c *Client) LockKey(ctx context.Context, req types.LockRequest) error {
	tx := c.TxFromContext(ctx)
	if tx == nil {
		return ierr.NewError("LockKey must be called inside a transaction").
			Mark(ierr.ErrInternal)
	}

	timeout := req.GetTimeout()
	if timeout <= 0 {
		ok, err := c.TryLockKey(ctx, req.Key)
		if err != nil {
			return err
		}
		if !ok {
			return ierr.NewErrorf("lock %s already held", req.Key).
				WithHint("Another operation is in progress, retry shortly").
				Mark(ierr.ErrAlreadyExists)
		}
		return nil
	}

	// SET LOCAL is reset when the transaction ends.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", timeout.Milliseconds())); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to set lock timeout").
			Mark(ierr.ErrDatabase)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.Key); err != nil {
		if isLockTimeoutError(err) {
			return ierr.WithError(err).
				WithHintf("Could not acquire lock within %v", timeout).
				WithReportableDetails(map[string]interface{}{"key": req.Key}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to acquire lock").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func isLockTimeoutError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgLockNotAvailable
	}
	return false
}

// TryLockKey attempts the advisory lock without waiting and reports whether it
// was acquired. Must run inside WithTx.
func (c *Client) TryLockKey(ctx context.Context, key string) (bool, error) {
	tx := c.TxFromContext(ctx)
	if tx == nil {
		return false, ierr.NewError("TryLockKey must be called inside a transaction").
			Mark(ierr.ErrInternal)
	}

	var ok bool
	if err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to try lock").
			Mark(ierr.ErrDatabase)
	}
	return ok, nil
}
