package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/flexprice/deprovisioner/internal/domain/membership"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/postgres"
	"github.com/lib/pq"
)

type membershipRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewMembershipRepository(client postgres.IClient, log *logger.Logger) membership.Repository {
	return &membershipRepository{
		client: client,
		log:    log,
	}
}

var snapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

const memberColumns = `
	m.organization_id, m.user_id, u.email, u.name, m.role, m.joined_at, m.is_active, m.deactivated_at`

func (r *membershipRepository) GetOrganization(ctx context.Context, organizationID string) (*membership.Organization, error) {
	org := &membership.Organization{}
	err := r.client.Reader(ctx).QueryRowContext(ctx, `
		SELECT id, name, COALESCE(creator_user_id, '')
		FROM organizations
		WHERE id = $1
	`, organizationID).Scan(&org.ID, &org.Name, &org.CreatorUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHintf("Organization %s not found", organizationID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get organization").
			WithReportableDetails(map[string]interface{}{"organization_id": organizationID}).
			Mark(ierr.ErrDatabase)
	}
	return org, nil
}

func (r *membershipRepository) GetSnapshot(ctx context.Context, organizationID string) (*membership.Snapshot, error) {
	snapshot := &membership.Snapshot{}

	// one snapshot for all three reads, so the counts agree with each other
	err := r.client.WithTxOptions(ctx, snapshotTxOptions, func(ctx context.Context) error {
		org, err := r.GetOrganization(ctx, organizationID)
		if err != nil {
			return err
		}
		snapshot.Organization = org

		snapshot.Members, err = r.queryMembers(ctx, `
			SELECT`+memberColumns+`
			FROM memberships m
			JOIN users u ON u.id = m.user_id
			WHERE m.organization_id = $1 AND m.is_active
			ORDER BY m.joined_at
		`, organizationID)
		if err != nil {
			return err
		}

		snapshot.Invitations, err = r.listInvitations(ctx, organizationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.log.Debugw("loaded membership snapshot",
		"organization_id", organizationID,
		"members", len(snapshot.Members),
		"invitations", len(snapshot.Invitations))
	return snapshot, nil
}

func (r *membershipRepository) GetMember(ctx context.Context, organizationID, userID string) (*membership.Member, error) {
	members, err := r.queryMembers(ctx, `
		SELECT`+memberColumns+`
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.user_id = $2
	`, organizationID, userID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ierr.NewError("membership not found").
			WithHint("Membership not found").
			WithReportableDetails(map[string]interface{}{
				"organization_id": organizationID,
				"user_id":         userID,
			}).
			Mark(ierr.ErrNotFound)
	}
	return members[0], nil
}

func (r *membershipRepository) ListAdmins(ctx context.Context, organizationID string) ([]*membership.Member, error) {
	return r.queryMembers(ctx, `
		SELECT`+memberColumns+`
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.is_active AND m.role = 'ADMIN'
		ORDER BY m.joined_at
	`, organizationID)
}

func (r *membershipRepository) DeleteInvitations(ctx context.Context, organizationID string, invitationIDs []string) (int, error) {
	if len(invitationIDs) == 0 {
		return 0, nil
	}

	result, err := r.client.Writer(ctx).ExecContext(ctx, `
		DELETE FROM invitations
		WHERE organization_id = $1 AND id = ANY($2)
	`, organizationID, pq.Array(invitationIDs))
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to delete invitations").
			WithReportableDetails(map[string]interface{}{
				"organization_id": organizationID,
				"invitation_ids":  invitationIDs,
			}).
			Mark(ierr.ErrDatabase)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return int(n), nil
}

func (r *membershipRepository) Deactivate(ctx context.Context, organizationID, userID string, at time.Time) (bool, error) {
	result, err := r.client.Writer(ctx).ExecContext(ctx, `
		UPDATE memberships
		SET is_active = false, deactivated_at = $3
		WHERE organization_id = $1 AND user_id = $2 AND is_active
	`, organizationID, userID, at)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to deactivate membership").
			WithReportableDetails(map[string]interface{}{
				"organization_id": organizationID,
				"user_id":         userID,
			}).
			Mark(ierr.ErrDatabase)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return n > 0, nil
}

func (r *membershipRepository) ClaimSubscriptionEvent(ctx context.Context, organizationID string, eventAt time.Time) (bool, error) {
	result, err := r.client.Writer(ctx).ExecContext(ctx, `
		UPDATE organizations
		SET subscription_event_at = $2
		WHERE id = $1 AND (subscription_event_at IS NULL OR subscription_event_at <= $2)
	`, organizationID, eventAt)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to record subscription event").
			WithReportableDetails(map[string]interface{}{"organization_id": organizationID}).
			Mark(ierr.ErrDatabase)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if n > 0 {
		return true, nil
	}

	// nothing updated: either a later event is recorded or the organization is unknown
	if _, err := r.GetOrganization(ctx, organizationID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *membershipRepository) queryMembers(ctx context.Context, query string, args ...interface{}) ([]*membership.Member, error) {
	rows, err := r.client.Reader(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list memberships").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var members []*membership.Member
	for rows.Next() {
		m := &membership.Member{}
		var deactivatedAt sql.NullTime
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &m.Email, &m.Name, &m.Role, &m.JoinedAt, &m.IsActive, &deactivatedAt); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to read membership").
				Mark(ierr.ErrDatabase)
		}
		if deactivatedAt.Valid {
			m.DeactivatedAt = &deactivatedAt.Time
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return members, nil
}

func (r *membershipRepository) listInvitations(ctx context.Context, organizationID string) ([]*membership.Invitation, error) {
	rows, err := r.client.Reader(ctx).QueryContext(ctx, `
		SELECT id, organization_id, email, created_at
		FROM invitations
		WHERE organization_id = $1
		ORDER BY created_at
	`, organizationID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invitations").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var invitations []*membership.Invitation
	for rows.Next() {
		inv := &membership.Invitation{}
		if err := rows.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &inv.CreatedAt); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return invitations, nil
}
