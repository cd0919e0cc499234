/*
Package auth holds the role/capability policy table.

PURPOSE:
  Access control is a data table, not code branching: Capability x Role,
  loaded once at process start, queried through a pure function. This
  keeps the matrix trivially testable and auditable.

ROLES:
  PPTK        - drafts and submits NPDs for their activities
  Bendahara   - treasurer; finalizes NPDs and records SP2D warrants
  Verifikator - reviews submitted NPDs; verifies or rejects
  Viewer      - read-only
  Admin       - everything, including SP2D soft delete and force unlock

The engine receives a verified Actor (user, role, organization) from the
authentication collaborator; it never inspects credentials itself.
*/
package auth

type Role string

const (
	RolePPTK        Role = "pptk"
	RoleBendahara   Role = "bendahara"
	RoleVerifikator Role = "verifikator"
	RoleViewer      Role = "viewer"
	RoleAdmin       Role = "admin"
)

func ValidRole(r Role) bool {
	switch r {
	case RolePPTK, RoleBendahara, RoleVerifikator, RoleViewer, RoleAdmin:
		return true
	}
	return false
}

type Capability string

const (
	CapCreateNPD   Capability = "create:npd"
	CapUpdateNPD   Capability = "update:npd"
	CapSubmitNPD   Capability = "submit:npd"
	CapVerifyNPD   Capability = "verify:npd"
	CapApproveNPD  Capability = "approve:npd"
	CapCreateSP2D  Capability = "create:sp2d"
	CapDeleteSP2D  Capability = "delete:sp2d"
	CapRestoreSP2D Capability = "restore:sp2d"
	CapImportRKA   Capability = "import:rka"
	CapViewAudit   Capability = "view:audit"
	CapUnlockNPD   Capability = "unlock:npd"
)

// matrix is the authoritative permission table. Admin rows are filled in
// by init so the literal only states the interesting grants.
var matrix = map[Capability]map[Role]bool{
	CapCreateNPD:   {RolePPTK: true},
	CapUpdateNPD:   {RolePPTK: true},
	CapSubmitNPD:   {RolePPTK: true},
	CapVerifyNPD:   {RoleVerifikator: true},
	CapApproveNPD:  {RoleBendahara: true},
	CapCreateSP2D:  {RoleBendahara: true},
	CapDeleteSP2D:  {},
	CapRestoreSP2D: {},
	CapImportRKA:   {RoleBendahara: true},
	CapViewAudit:   {RoleVerifikator: true, RoleBendahara: true},
	CapUnlockNPD:   {},
}

func init() {
	for cap := range matrix {
		matrix[cap][RoleAdmin] = true
	}
}

// HasPermission reports whether the role carries the capability.
func HasPermission(role Role, cap Capability) bool {
	return matrix[cap][role]
}

// Actor is the verified identity attached to every mutation.
type Actor struct {
	UserID         string
	Role           Role
	OrganizationID string
}
