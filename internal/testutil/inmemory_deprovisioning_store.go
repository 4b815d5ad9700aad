package testutil

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
)

// InMemoryDeprovisioningQueueStore implements deprovisioning.Repository
type InMemoryDeprovisioningQueueStore struct {
	*InMemoryStore[*deprovisioning.QueueEntry]
}

func NewInMemoryDeprovisioningQueueStore() *InMemoryDeprovisioningQueueStore {
	return &InMemoryDeprovisioningQueueStore{
		InMemoryStore: NewInMemoryStore[*deprovisioning.QueueEntry](),
	}
}

var _ deprovisioning.Repository = (*InMemoryDeprovisioningQueueStore)(nil)

func copyQueueEntry(e *deprovisioning.QueueEntry) *deprovisioning.QueueEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.LastNotificationAt != nil {
		c.LastNotificationAt = lo.ToPtr(*e.LastNotificationAt)
	}
	return &c
}

func (s *InMemoryDeprovisioningQueueStore) Upsert(ctx context.Context, e *deprovisioning.QueueEntry) (*deprovisioning.QueueEntry, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var stored *deprovisioning.QueueEntry
	err := s.Mutate(func(items map[string]*deprovisioning.QueueEntry) error {
		for _, existing := range items {
			if existing.OrganizationID == e.OrganizationID && existing.UserID == e.UserID {
				existing.Reactivate(e)
				stored = copyQueueEntry(existing)
				return nil
			}
		}
		items[e.ID] = copyQueueEntry(e)
		stored = copyQueueEntry(e)
		return nil
	})
	return stored, err
}

func (s *InMemoryDeprovisioningQueueStore) Get(ctx context.Context, id string) (*deprovisioning.QueueEntry, error) {
	e, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Queue entry %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyQueueEntry(e), nil
}

func (s *InMemoryDeprovisioningQueueStore) GetByOrganizationAndUser(ctx context.Context, organizationID, userID string) (*deprovisioning.QueueEntry, error) {
	entries, err := s.List(ctx, &deprovisioning.Filter{OrganizationID: organizationID})
	if err != nil {
		return nil, err
	}
	e, ok := lo.Find(entries, func(e *deprovisioning.QueueEntry) bool { return e.UserID == userID })
	if !ok {
		return nil, ierr.NewError("deprovisioning queue entry not found").Mark(ierr.ErrNotFound)
	}
	return e, nil
}

func (s *InMemoryDeprovisioningQueueStore) List(ctx context.Context, filter *deprovisioning.Filter) ([]*deprovisioning.QueueEntry, error) {
	if filter == nil {
		filter = &deprovisioning.Filter{}
	}
	entries, err := s.InMemoryStore.List(ctx, filter, queueEntryFilterFn, queueEntrySortFn)
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return lo.Map(entries, func(e *deprovisioning.QueueEntry, _ int) *deprovisioning.QueueEntry {
		return copyQueueEntry(e)
	}), nil
}

func (s *InMemoryDeprovisioningQueueStore) Update(ctx context.Context, e *deprovisioning.QueueEntry, expected types.QueueStatus) error {
	return s.Mutate(func(items map[string]*deprovisioning.QueueEntry) error {
		existing, ok := items[e.ID]
		if !ok {
			return ierr.NewError("deprovisioning queue entry not found").Mark(ierr.ErrNotFound)
		}
		if existing.Status != expected {
			return ierr.NewErrorf("queue entry %s is no longer %s", e.ID, expected).
				WithHint("The queue entry changed concurrently").
				Mark(ierr.ErrInvalidOperation)
		}
		items[e.ID] = copyQueueEntry(e)
		return nil
	})
}

func (s *InMemoryDeprovisioningQueueStore) CancelByOrganization(ctx context.Context, organizationID string, status types.QueueStatus) ([]*deprovisioning.QueueEntry, error) {
	if !status.IsCanceled() {
		return nil, ierr.NewErrorf("%s is not a cancellation status", status).Mark(ierr.ErrValidation)
	}

	var canceled []*deprovisioning.QueueEntry
	err := s.Mutate(func(items map[string]*deprovisioning.QueueEntry) error {
		for _, e := range items {
			if e.OrganizationID == organizationID && !e.Status.IsTerminal() {
				e.Status = status
				e.UpdatedAt = time.Now().UTC()
				canceled = append(canceled, copyQueueEntry(e))
			}
		}
		return nil
	})
	return canceled, err
}

func queueEntryFilterFn(_ context.Context, e *deprovisioning.QueueEntry, filter interface{}) bool {
	f, ok := filter.(*deprovisioning.Filter)
	if !ok || f == nil {
		return true
	}
	if len(f.IDs) > 0 && !lo.Contains(f.IDs, e.ID) {
		return false
	}
	if f.OrganizationID != "" && e.OrganizationID != f.OrganizationID {
		return false
	}
	if f.BatchID != "" && e.BatchID != f.BatchID {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, e.Status) {
		return false
	}
	if f.ScheduledBefore != nil && e.ScheduledFor.After(*f.ScheduledBefore) {
		return false
	}
	if f.LastNotifiedBefore != nil && (e.LastNotificationAt == nil || e.LastNotificationAt.After(*f.LastNotifiedBefore)) {
		return false
	}
	return true
}

func queueEntrySortFn(i, j *deprovisioning.QueueEntry) bool {
	if i.ScheduledFor.Equal(j.ScheduledFor) {
		return i.ID < j.ID
	}
	return i.ScheduledFor.Before(j.ScheduledFor)
}
