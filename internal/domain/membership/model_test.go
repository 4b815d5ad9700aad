package membership

import (
	"testing"

	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotHelpers(t *testing.T) {
	s := &Snapshot{
		Organization: &Organization{ID: "org_1", CreatorUserID: "u_admin"},
		Members: []*Member{
			{UserID: "u_admin", Role: types.MembershipRoleAdmin},
			{UserID: "u_member", Role: types.MembershipRoleMember},
		},
		Invitations: []*Invitation{{ID: "inv_1"}},
	}

	assert.Equal(t, 3, s.CurrentTotal())
	assert.Len(t, s.Admins(), 1)
	assert.True(t, s.IsCreator("u_admin"))
	assert.False(t, s.IsCreator("u_member"))
	assert.False(t, (&Snapshot{Organization: &Organization{}}).IsCreator(""))
}
