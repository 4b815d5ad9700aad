package deprovisioning

import (
	"testing"
	"time"

	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueueEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e := NewQueueEntry("org_1", "u_1", "dpb_1", types.DeprovisioningReasonSubscriptionDowngrade, now, 14*24*time.Hour)

	require.NoError(t, e.Validate())
	assert.Equal(t, types.QueueStatusPending, e.Status)
	assert.Equal(t, now.AddDate(0, 0, 14), e.ScheduledFor)
	assert.Equal(t, e.ScheduledFor, e.OriginalScheduledFor)
	assert.Contains(t, e.ID, types.UUID_PREFIX_DEPROVISIONING_ENTRY+"_")
	assert.Equal(t, 14, e.DaysRemaining(now))
}

func TestQueueEntryValidate(t *testing.T) {
	e := &QueueEntry{OrganizationID: "org_1", Status: types.QueueStatusPending}
	assert.Error(t, e.Validate())

	e.UserID = "u_1"
	e.Reason = "BOGUS"
	assert.Error(t, e.Validate())
}

func TestReactivateResetsCycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	existing := NewQueueEntry("org_1", "u_1", "dpb_old", types.DeprovisioningReasonSubscriptionDowngrade, now, 14*24*time.Hour)
	existing.Status = types.QueueStatusCanceledUpgrade
	existing.NotificationsSent = 2
	existing.LastNotificationAt = lo.ToPtr(now)
	existing.ExtensionGranted = true
	existing.ExtendedBy = "admin"

	later := now.AddDate(0, 1, 0)
	fresh := NewQueueEntry("org_1", "u_1", "dpb_new", types.DeprovisioningReasonSubscriptionCancelled, later, 14*24*time.Hour)
	id := existing.ID
	existing.Reactivate(fresh)

	assert.Equal(t, id, existing.ID)
	assert.Equal(t, types.QueueStatusPending, existing.Status)
	assert.Equal(t, fresh.ScheduledFor, existing.ScheduledFor)
	assert.Equal(t, fresh.ScheduledFor, existing.OriginalScheduledFor)
	assert.Equal(t, types.DeprovisioningReasonSubscriptionCancelled, existing.Reason)
	assert.Equal(t, "dpb_new", existing.BatchID)
	assert.Zero(t, existing.NotificationsSent)
	assert.Nil(t, existing.LastNotificationAt)
	assert.False(t, existing.ExtensionGranted)
	assert.Empty(t, existing.ExtendedBy)
}

func TestIsDueForExecution(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	e := &QueueEntry{Status: types.QueueStatusNotifiedFinal, ScheduledFor: now}
	assert.True(t, e.IsDueForExecution(now))
	assert.False(t, e.IsDueForExecution(now.Add(-time.Second)))

	e.Status = types.QueueStatusNotifiedReminder
	assert.False(t, e.IsDueForExecution(now))
}
