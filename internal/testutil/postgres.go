package testutil

import (
	"context"
	"database/sql"
	"sync"

	"github.com/flexprice/deprovisioner/internal/postgres"
	"github.com/flexprice/deprovisioner/internal/types"
)

// MockPostgresClient satisfies postgres.IClient for services backed by the
// in-memory stores. Transactions run inline and locks are recorded.
type MockPostgresClient struct {
	mu     sync.Mutex
	locks  []string
	onLock func(ctx context.Context, key string)
}

var _ postgres.IClient = (*MockPostgresClient)(nil)

func NewMockPostgresClient() *MockPostgresClient {
	return &MockPostgresClient{}
}

func (c *MockPostgresClient) Writer(context.Context) postgres.Querier { return nil }
func (c *MockPostgresClient) Reader(context.Context) postgres.Querier { return nil }

func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (c *MockPostgresClient) WithTxOptions(ctx context.Context, _ *sql.TxOptions, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (c *MockPostgresClient) LockKey(ctx context.Context, req types.LockRequest) error {
	c.mu.Lock()
	c.locks = append(c.locks, req.Key)
	hook := c.onLock
	c.onLock = nil
	c.mu.Unlock()

	if hook != nil {
		hook(ctx, req.Key)
	}
	return nil
}

// OnNextLock runs fn once, right after the next lock is granted. Tests use it
// to let a competing writer act while the caller waits on the lock.
func (c *MockPostgresClient) OnNextLock(fn func(ctx context.Context, key string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLock = fn
}

// Locks returns the lock keys taken so far.
func (c *MockPostgresClient) Locks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.locks...)
}
