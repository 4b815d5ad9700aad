package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/postgres"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

const DEFAULT_LIMIT = 1000

const queueColumns = `id, organization_id, user_id, status, scheduled_for, original_scheduled_for, reason,
	notifications_sent, last_notification_at, extension_granted, extension_reason, extended_by,
	batch_id, created_at, updated_at`

type queueRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewDeprovisioningQueueRepository(client postgres.IClient, log *logger.Logger) deprovisioning.Repository {
	return &queueRepository{
		client: client,
		log:    log,
	}
}

// Upsert relies on the (organization_id, user_id) unique constraint so two
// concurrent downgrades for one user converge on a single row.
func (r *queueRepository) Upsert(ctx context.Context, e *deprovisioning.QueueEntry) (*deprovisioning.QueueEntry, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	rows, err := r.client.Writer(ctx).QueryContext(ctx, `
		INSERT INTO deprovisioning_queue (`+queueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET
			status = EXCLUDED.status,
			scheduled_for = EXCLUDED.scheduled_for,
			original_scheduled_for = EXCLUDED.original_scheduled_for,
			reason = EXCLUDED.reason,
			notifications_sent = 0,
			last_notification_at = NULL,
			extension_granted = false,
			extension_reason = '',
			extended_by = '',
			batch_id = EXCLUDED.batch_id,
			updated_at = EXCLUDED.updated_at
		RETURNING `+queueColumns,
		e.ID, e.OrganizationID, e.UserID, string(e.Status), e.ScheduledFor, e.OriginalScheduledFor, string(e.Reason),
		e.NotificationsSent, e.LastNotificationAt, e.ExtensionGranted, e.ExtensionReason, e.ExtendedBy,
		e.BatchID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to upsert deprovisioning queue entry").
			WithReportableDetails(map[string]interface{}{
				"organization_id": e.OrganizationID,
				"user_id":         e.UserID,
			}).
			Mark(ierr.ErrDatabase)
	}

	entries, err := scanQueueEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) != 1 {
		return nil, ierr.NewError("upsert returned no row").Mark(ierr.ErrDatabase)
	}
	return entries[0], nil
}

func (r *queueRepository) Get(ctx context.Context, id string) (*deprovisioning.QueueEntry, error) {
	entries, err := r.List(ctx, &deprovisioning.Filter{IDs: []string{id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ierr.NewError("deprovisioning queue entry not found").
			WithHintf("Queue entry %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return entries[0], nil
}

func (r *queueRepository) GetByOrganizationAndUser(ctx context.Context, organizationID, userID string) (*deprovisioning.QueueEntry, error) {
	rows, err := r.client.Reader(ctx).QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM deprovisioning_queue
		WHERE organization_id = $1 AND user_id = $2
	`, organizationID, userID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get deprovisioning queue entry").
			Mark(ierr.ErrDatabase)
	}

	entries, err := scanQueueEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ierr.NewError("deprovisioning queue entry not found").
			WithReportableDetails(map[string]interface{}{
				"organization_id": organizationID,
				"user_id":         userID,
			}).
			Mark(ierr.ErrNotFound)
	}
	return entries[0], nil
}

func (r *queueRepository) List(ctx context.Context, filter *deprovisioning.Filter) ([]*deprovisioning.QueueEntry, error) {
	if filter == nil {
		filter = &deprovisioning.Filter{}
	}

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.IDs) > 0 {
		conds = append(conds, "id = ANY("+arg(pq.Array(filter.IDs))+")")
	}
	if filter.OrganizationID != "" {
		conds = append(conds, "organization_id = "+arg(filter.OrganizationID))
	}
	if filter.BatchID != "" {
		conds = append(conds, "batch_id = "+arg(filter.BatchID))
	}
	if len(filter.Statuses) > 0 {
		statuses := lo.Map(filter.Statuses, func(s types.QueueStatus, _ int) string { return string(s) })
		conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if filter.ScheduledBefore != nil {
		conds = append(conds, "scheduled_for <= "+arg(*filter.ScheduledBefore))
	}
	if filter.LastNotifiedBefore != nil {
		conds = append(conds, "last_notification_at <= "+arg(*filter.LastNotifiedBefore))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DEFAULT_LIMIT
	}

	query := "SELECT " + queueColumns + " FROM deprovisioning_queue"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scheduled_for, id LIMIT " + arg(limit)

	rows, err := r.client.Reader(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list deprovisioning queue entries").
			Mark(ierr.ErrDatabase)
	}
	return scanQueueEntries(rows)
}

func (r *queueRepository) Update(ctx context.Context, e *deprovisioning.QueueEntry, expected types.QueueStatus) error {
	result, err := r.client.Writer(ctx).ExecContext(ctx, `
		UPDATE deprovisioning_queue SET
			status = $3,
			scheduled_for = $4,
			original_scheduled_for = $5,
			reason = $6,
			notifications_sent = $7,
			last_notification_at = $8,
			extension_granted = $9,
			extension_reason = $10,
			extended_by = $11,
			batch_id = $12,
			updated_at = $13
		WHERE id = $1 AND status = $2
	`,
		e.ID, string(expected), string(e.Status), e.ScheduledFor, e.OriginalScheduledFor, string(e.Reason),
		e.NotificationsSent, e.LastNotificationAt, e.ExtensionGranted, e.ExtensionReason, e.ExtendedBy,
		e.BatchID, e.UpdatedAt,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update deprovisioning queue entry").
			WithReportableDetails(map[string]interface{}{"id": e.ID}).
			Mark(ierr.ErrDatabase)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return ierr.NewErrorf("queue entry %s is no longer %s", e.ID, expected).
			WithHint("The queue entry changed concurrently").
			WithReportableDetails(map[string]interface{}{
				"id":              e.ID,
				"expected_status": expected,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}

func (r *queueRepository) CancelByOrganization(ctx context.Context, organizationID string, status types.QueueStatus) ([]*deprovisioning.QueueEntry, error) {
	if !status.IsCanceled() {
		return nil, ierr.NewErrorf("%s is not a cancellation status", status).
			Mark(ierr.ErrValidation)
	}

	active := lo.Map(types.ActiveQueueStatuses, func(s types.QueueStatus, _ int) string { return string(s) })
	rows, err := r.client.Writer(ctx).QueryContext(ctx, `
		UPDATE deprovisioning_queue
		SET status = $2, updated_at = NOW()
		WHERE organization_id = $1 AND status = ANY($3)
		RETURNING `+queueColumns,
		organizationID, string(status), pq.Array(active),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to cancel deprovisioning queue entries").
			WithReportableDetails(map[string]interface{}{"organization_id": organizationID}).
			Mark(ierr.ErrDatabase)
	}

	entries, err := scanQueueEntries(rows)
	if err != nil {
		return nil, err
	}
	r.log.Infow("canceled deprovisioning queue entries",
		"organization_id", organizationID,
		"status", status,
		"count", len(entries))
	return entries, nil
}

func scanQueueEntries(rows *sql.Rows) ([]*deprovisioning.QueueEntry, error) {
	defer rows.Close()

	var entries []*deprovisioning.QueueEntry
	for rows.Next() {
		e := &deprovisioning.QueueEntry{}
		var lastNotificationAt sql.NullTime
		err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.UserID, &e.Status, &e.ScheduledFor, &e.OriginalScheduledFor, &e.Reason,
			&e.NotificationsSent, &lastNotificationAt, &e.ExtensionGranted, &e.ExtensionReason, &e.ExtendedBy,
			&e.BatchID, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to read deprovisioning queue entry").
				Mark(ierr.ErrDatabase)
		}
		if lastNotificationAt.Valid {
			e.LastNotificationAt = &lastNotificationAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return entries, nil
}
