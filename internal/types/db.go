package types

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// LockScope represents the scope of a database advisory lock
type LockScope string

const (
	// LockScopeQueueEntry serializes writes to one (organization, user) queue entry.
	LockScopeQueueEntry LockScope = "deprovisioning_queue_entry"
	// LockScopeOrganization serializes subscription change handling per organization.
	LockScopeOrganization LockScope = "deprovisioning_organization"
)

// LockRequest describes an advisory lock acquisition.
type LockRequest struct {
	Key     string
	Timeout *time.Duration
}

// GetTimeout returns the requested timeout, defaulting to 30 seconds.
func (r LockRequest) GetTimeout() time.Duration {
	if r.Timeout == nil {
		return 30 * time.Second
	}
	return *r.Timeout
}

// GenerateLockKey generates a lock key from a scope and parameters.
// The organization id from context is included when params does not set it.
// The key is a deterministic string that Postgres will hash internally.
func GenerateLockKey(ctx context.Context, scope LockScope, params map[string]interface{}) string {
	mergedParams := make(map[string]interface{})
	if orgID := GetOrganizationID(ctx); orgID != "" {
		mergedParams["organization_id"] = orgID
	}
	for k, v := range params {
		mergedParams[k] = v
	}

	keys := make([]string, 0, len(mergedParams))
	for k := range mergedParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// scope:key1=value1:key2=value2:...
	var b strings.Builder
	b.WriteString(string(scope))
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(":%s=%v", k, mergedParams[k]))
	}

	return b.String()
}
