package policy

import "strings"

// Capability is something a signed-in clinician may be allowed to do.
type Capability string

const (
	// ViewHospitalDashboards covers the admin dashboard, allocation and
	// organogram, and the team half of the burnout screen.
	ViewHospitalDashboards Capability = "view_hospital_dashboards"
	// UpdateHospitalStatus publishes OpenER readiness for a hospital.
	UpdateHospitalStatus Capability = "update_hospital_status"
)

var adminRoles = map[string]struct{}{
	"super_admin":    {},
	"org_admin":      {},
	"hospital_admin": {},
	"admin":          {},
}

// Allows reports whether role grants c.
func Allows(role string, c Capability) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	_, admin := adminRoles[role]
	switch c {
	case ViewHospitalDashboards, UpdateHospitalStatus:
		return admin
	default:
		return false
	}
}

// IsAdmin reports whether role may see hospital-wide dashboards.
func IsAdmin(role string) bool {
	return Allows(role, ViewHospitalDashboards)
}
