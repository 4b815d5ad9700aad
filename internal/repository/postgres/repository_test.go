package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/postgres"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	ctx     context.Context
	mock    sqlmock.Sqlmock
	members *membershipRepository
	queue   *queueRepository
	now     time.Time
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })

	log := logger.NewNopLogger()
	client := postgres.NewClient(db, log)

	s.ctx = context.Background()
	s.mock = mock
	s.members = NewMembershipRepository(client, log).(*membershipRepository)
	s.queue = NewDeprovisioningQueueRepository(client, log).(*queueRepository)
	s.now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
}

func (s *RepositorySuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

var memberCols = []string{"organization_id", "user_id", "email", "name", "role", "joined_at", "is_active", "deactivated_at"}

var entryCols = []string{"id", "organization_id", "user_id", "status", "scheduled_for", "original_scheduled_for", "reason",
	"notifications_sent", "last_notification_at", "extension_granted", "extension_reason", "extended_by",
	"batch_id", "created_at", "updated_at"}

func (s *RepositorySuite) entryRow(id string, status types.QueueStatus, sent int, last *time.Time) []driver.Value {
	var lastValue driver.Value
	if last != nil {
		lastValue = *last
	}
	return []driver.Value{id, "org_1", "u_1", string(status), s.now.AddDate(0, 0, 14), s.now.AddDate(0, 0, 14),
		string(types.DeprovisioningReasonSubscriptionDowngrade), sent, lastValue, false, "", "", "dpb_1", s.now, s.now}
}

func (s *RepositorySuite) TestGetSnapshotReadsInOneTransaction() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FROM organizations").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "creator_user_id"}).AddRow("org_1", "Acme", "u_admin"))
	s.mock.ExpectQuery("FROM memberships m").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("org_1", "u_admin", "admin@acme.io", "Ada", "ADMIN", s.now.AddDate(-1, 0, 0), true, nil).
			AddRow("org_1", "u_2", "two@acme.io", "Bo", "MEMBER", s.now.AddDate(0, -1, 0), true, nil))
	s.mock.ExpectQuery("FROM invitations").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "created_at"}).
			AddRow("inv_1", "org_1", "new@acme.io", s.now))
	s.mock.ExpectCommit()

	snapshot, err := s.members.GetSnapshot(s.ctx, "org_1")
	s.Require().NoError(err)
	s.Equal("u_admin", snapshot.Organization.CreatorUserID)
	s.Len(snapshot.Members, 2)
	s.Equal(types.MembershipRoleAdmin, snapshot.Members[0].Role)
	s.Len(snapshot.Invitations, 1)
	s.Equal(3, snapshot.CurrentTotal())
}

// txOptionsRecorder keeps the options of every transaction it starts.
type txOptionsRecorder struct {
	*postgres.Client
	opts []*sql.TxOptions
}

func (c *txOptionsRecorder) WithTxOptions(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	c.opts = append(c.opts, opts)
	return c.Client.WithTxOptions(ctx, opts, fn)
}

func (s *RepositorySuite) TestGetSnapshotUsesRepeatableReadSnapshot() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	defer db.Close()

	log := logger.NewNopLogger()
	client := &txOptionsRecorder{Client: postgres.NewClient(db, log)}
	members := NewMembershipRepository(client, log)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM organizations").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "creator_user_id"}).AddRow("org_1", "Acme", ""))
	mock.ExpectQuery("FROM memberships m").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows(memberCols))
	mock.ExpectQuery("FROM invitations").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "created_at"}))
	mock.ExpectCommit()

	_, err = members.GetSnapshot(s.ctx, "org_1")
	s.Require().NoError(err)
	s.NoError(mock.ExpectationsWereMet())

	s.Require().Len(client.opts, 1)
	s.Equal(sql.LevelRepeatableRead, client.opts[0].Isolation)
	s.True(client.opts[0].ReadOnly)
}

func (s *RepositorySuite) TestGetSnapshotUnknownOrganization() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FROM organizations").
		WithArgs("org_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "creator_user_id"}))
	s.mock.ExpectRollback()

	_, err := s.members.GetSnapshot(s.ctx, "org_missing")
	s.True(ierr.IsNotFound(err))
}

func (s *RepositorySuite) TestClaimSubscriptionEventRecordsNewerEvent() {
	s.mock.ExpectExec("UPDATE organizations").
		WithArgs("org_1", s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	current, err := s.members.ClaimSubscriptionEvent(s.ctx, "org_1", s.now)
	s.Require().NoError(err)
	s.True(current)
}

func (s *RepositorySuite) TestClaimSubscriptionEventRejectsOlderEvent() {
	s.mock.ExpectExec("UPDATE organizations").
		WithArgs("org_1", s.now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("FROM organizations").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "creator_user_id"}).AddRow("org_1", "Acme", ""))

	current, err := s.members.ClaimSubscriptionEvent(s.ctx, "org_1", s.now)
	s.Require().NoError(err)
	s.False(current)
}

func (s *RepositorySuite) TestClaimSubscriptionEventUnknownOrganization() {
	s.mock.ExpectExec("UPDATE organizations").
		WithArgs("org_missing", s.now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("FROM organizations").
		WithArgs("org_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "creator_user_id"}))

	_, err := s.members.ClaimSubscriptionEvent(s.ctx, "org_missing", s.now)
	s.True(ierr.IsNotFound(err))
}

func (s *RepositorySuite) TestGetMemberNotFound() {
	s.mock.ExpectQuery("FROM memberships m").
		WithArgs("org_1", "u_gone").
		WillReturnRows(sqlmock.NewRows(memberCols))

	_, err := s.members.GetMember(s.ctx, "org_1", "u_gone")
	s.True(ierr.IsNotFound(err))
}

func (s *RepositorySuite) TestDeactivate() {
	s.mock.ExpectExec("UPDATE memberships").
		WithArgs("org_1", "u_2", s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("UPDATE memberships").
		WithArgs("org_1", "u_2", s.now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := s.members.Deactivate(s.ctx, "org_1", "u_2", s.now)
	s.Require().NoError(err)
	s.True(changed)

	changed, err = s.members.Deactivate(s.ctx, "org_1", "u_2", s.now)
	s.Require().NoError(err)
	s.False(changed)
}

func (s *RepositorySuite) TestDeleteInvitations() {
	n, err := s.members.DeleteInvitations(s.ctx, "org_1", nil)
	s.Require().NoError(err)
	s.Zero(n)

	s.mock.ExpectExec("DELETE FROM invitations").
		WithArgs("org_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err = s.members.DeleteInvitations(s.ctx, "org_1", []string{"inv_1", "inv_2"})
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *RepositorySuite) TestUpsertResetsOnConflict() {
	entry := deprovisioning.NewQueueEntry("org_1", "u_1", "dpb_1", types.DeprovisioningReasonSubscriptionDowngrade, s.now, 14*24*time.Hour)

	s.mock.ExpectQuery("ON CONFLICT \\(organization_id, user_id\\) DO UPDATE").
		WillReturnRows(sqlmock.NewRows(entryCols).AddRow(s.entryRow("dpq_existing", types.QueueStatusPending, 0, nil)...))

	stored, err := s.queue.Upsert(s.ctx, entry)
	s.Require().NoError(err)
	s.Equal("dpq_existing", stored.ID)
	s.Equal(types.QueueStatusPending, stored.Status)
	s.Nil(stored.LastNotificationAt)
}

func (s *RepositorySuite) TestUpsertValidates() {
	_, err := s.queue.Upsert(s.ctx, &deprovisioning.QueueEntry{OrganizationID: "org_1"})
	s.True(ierr.IsValidation(err))
}

func (s *RepositorySuite) TestListBuildsFilter() {
	cutoff := s.now.Add(-time.Hour)
	s.mock.ExpectQuery("WHERE organization_id = \\$1 AND status = ANY\\(\\$2\\) AND last_notification_at <= \\$3 ORDER BY scheduled_for, id LIMIT \\$4").
		WithArgs("org_1", sqlmock.AnyArg(), cutoff, 50).
		WillReturnRows(sqlmock.NewRows(entryCols).AddRow(s.entryRow("dpq_1", types.QueueStatusNotifiedOnce, 1, &cutoff)...))

	entries, err := s.queue.List(s.ctx, &deprovisioning.Filter{
		OrganizationID:     "org_1",
		Statuses:           []types.QueueStatus{types.QueueStatusNotifiedOnce},
		LastNotifiedBefore: &cutoff,
		Limit:              50,
	})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(1, entries[0].NotificationsSent)
	s.Equal(cutoff, lo.FromPtr(entries[0].LastNotificationAt))
}

func (s *RepositorySuite) TestGetNotFound() {
	s.mock.ExpectQuery("FROM deprovisioning_queue WHERE id = ANY").
		WillReturnRows(sqlmock.NewRows(entryCols))

	_, err := s.queue.Get(s.ctx, "dpq_missing")
	s.True(ierr.IsNotFound(err))
}

func (s *RepositorySuite) TestUpdateIsConditionalOnStatus() {
	entry := deprovisioning.NewQueueEntry("org_1", "u_1", "dpb_1", types.DeprovisioningReasonSubscriptionDowngrade, s.now, 14*24*time.Hour)
	entry.Status = types.QueueStatusNotifiedOnce

	s.mock.ExpectExec("UPDATE deprovisioning_queue SET").
		WithArgs(entry.ID, "PENDING", "NOTIFIED_ONCE", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.Require().NoError(s.queue.Update(s.ctx, entry, types.QueueStatusPending))

	s.mock.ExpectExec("UPDATE deprovisioning_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.queue.Update(s.ctx, entry, types.QueueStatusPending)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *RepositorySuite) TestCancelByOrganization() {
	_, err := s.queue.CancelByOrganization(s.ctx, "org_1", types.QueueStatusCompleted)
	s.True(ierr.IsValidation(err))

	s.mock.ExpectQuery("UPDATE deprovisioning_queue").
		WithArgs("org_1", "CANCELED_UPGRADE", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(entryCols).AddRow(s.entryRow("dpq_1", types.QueueStatusCanceledUpgrade, 2, &s.now)...))

	entries, err := s.queue.CancelByOrganization(s.ctx, "org_1", types.QueueStatusCanceledUpgrade)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(types.QueueStatusCanceledUpgrade, entries[0].Status)
}
