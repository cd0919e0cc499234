package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sipd/npd-tracker/auth"
)

func TestHasPermission_RoleGrants(t *testing.T) {
	cases := []struct {
		role auth.Role
		cap  auth.Capability
		want bool
	}{
		{auth.RolePPTK, auth.CapCreateNPD, true},
		{auth.RolePPTK, auth.CapSubmitNPD, true},
		{auth.RolePPTK, auth.CapVerifyNPD, false},
		{auth.RolePPTK, auth.CapCreateSP2D, false},

		{auth.RoleVerifikator, auth.CapVerifyNPD, true},
		{auth.RoleVerifikator, auth.CapViewAudit, true},
		{auth.RoleVerifikator, auth.CapCreateNPD, false},
		{auth.RoleVerifikator, auth.CapApproveNPD, false},

		{auth.RoleBendahara, auth.CapApproveNPD, true},
		{auth.RoleBendahara, auth.CapCreateSP2D, true},
		{auth.RoleBendahara, auth.CapImportRKA, true},
		{auth.RoleBendahara, auth.CapDeleteSP2D, false},

		{auth.RoleViewer, auth.CapCreateNPD, false},
		{auth.RoleViewer, auth.CapViewAudit, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, auth.HasPermission(c.role, c.cap), "%s / %s", c.role, c.cap)
	}
}

func TestHasPermission_AdminHasEverything(t *testing.T) {
	caps := []auth.Capability{
		auth.CapCreateNPD, auth.CapUpdateNPD, auth.CapSubmitNPD,
		auth.CapVerifyNPD, auth.CapApproveNPD, auth.CapCreateSP2D,
		auth.CapDeleteSP2D, auth.CapRestoreSP2D, auth.CapImportRKA,
		auth.CapViewAudit, auth.CapUnlockNPD,
	}
	for _, cap := range caps {
		assert.True(t, auth.HasPermission(auth.RoleAdmin, cap), "admin should hold %s", cap)
	}
}

func TestHasPermission_UnknownRole_DeniedEverywhere(t *testing.T) {
	assert.False(t, auth.HasPermission("intruder", auth.CapCreateNPD))
	assert.False(t, auth.HasPermission("", auth.CapViewAudit))
}

func TestValidRole(t *testing.T) {
	for _, r := range []auth.Role{auth.RolePPTK, auth.RoleBendahara, auth.RoleVerifikator, auth.RoleViewer, auth.RoleAdmin} {
		assert.True(t, auth.ValidRole(r))
	}
	assert.False(t, auth.ValidRole("superuser"))
}
