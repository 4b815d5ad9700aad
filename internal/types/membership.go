package types

import (
	ierr "github.com/flexprice/deprovisioner/internal/errors"
)

type MembershipRole string

const (
	MembershipRoleMember MembershipRole = "MEMBER"
	MembershipRoleAdmin  MembershipRole = "ADMIN"
)

func (r MembershipRole) Validate() error {
	switch r {
	case MembershipRoleMember, MembershipRoleAdmin:
		return nil
	}
	return ierr.NewErrorf("invalid membership role %q", string(r)).
		WithHint("Role must be MEMBER or ADMIN").
		Mark(ierr.ErrValidation)
}

func (r MembershipRole) IsAdmin() bool {
	return r == MembershipRoleAdmin
}
