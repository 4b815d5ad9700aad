package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/types"
	_ "github.com/lib/pq"
)

type txKey struct{}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// IClient is what repositories and services depend on.
type IClient interface {
	// Writer returns the transaction bound to ctx, or the pool.
	Writer(ctx context.Context) Querier
	// Reader is Writer for read paths. It shares the pool.
	Reader(ctx context.Context) Querier
	// WithTx runs fn inside a transaction. Nested calls reuse the outer one.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// WithTxOptions is WithTx with an explicit isolation level. A nested call
	// reuses the outer transaction and its options.
	WithTxOptions(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error
	LockKey(ctx context.Context, req types.LockRequest) error
}

// Client wraps the database pool and tracks the current transaction in context.
type Client struct {
	db     *sql.DB
	logger *logger.Logger
}

var _ IClient = (*Client)(nil)

// NewDB opens the pool configured in cfg.Postgres.
func NewDB(cfg *config.Configuration) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to open postgres connection").
			Mark(ierr.ErrDatabase)
	}

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)
	return db, nil
}

func NewClient(db *sql.DB, logger *logger.Logger) *Client {
	return &Client{db: db, logger: logger}
}

// DB exposes the underlying pool.
func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Writer(ctx context.Context) Querier {
	if tx := c.TxFromContext(ctx); tx != nil {
		return tx
	}
	return c.db
}

func (c *Client) Reader(ctx context.Context) Querier {
	return c.Writer(ctx)
}

// TxFromContext returns the transaction started by WithTx, if any.
func (c *Client) TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.WithTxOptions(ctx, nil, fn)
}

func (c *Client) WithTxOptions(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	if c.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to start transaction").
			Mark(ierr.ErrDatabase)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Errorw("failed to rollback transaction", "error", rbErr)
			}
			return
		}
		if cmErr := tx.Commit(); cmErr != nil {
			err = ierr.WithError(cmErr).
				WithHint("Failed to commit transaction").
				Mark(ierr.ErrDatabase)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.db.Close()
}
