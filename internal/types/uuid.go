package types

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	UUID_PREFIX_DEPROVISIONING_ENTRY = "dpq"
	UUID_PREFIX_DEPROVISIONING_BATCH = "dpb"
	UUID_PREFIX_EVENT                = "evt"
	UUID_PREFIX_CRON_RUN             = "cron"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateUUID returns a lowercase ULID.
func GenerateUUID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// GenerateUUIDWithPrefix returns "<prefix>_<ulid>".
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return prefix + "_" + GenerateUUID()
}
