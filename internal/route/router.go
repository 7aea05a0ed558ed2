// Package route decides where the client navigates after every session
// change. Resolve is pure and total: every reachable identity state maps to
// exactly one destination, with no side effects.
package route

import "elevate/portal/internal/model"

// View is the closed set of navigation targets.
type View string

const (
	ViewLanding          View = "landing"
	ViewVerifyEmail      View = "verify-email"
	ViewAwaitingApproval View = "awaiting-approval"
	ViewStudentHome      View = "student-home"
	ViewCompanyHome      View = "company-home"
	ViewTPOHome          View = "tpo-home"
	ViewSuperAdminHome   View = "super-admin-home"
	ViewProfile          View = "profile"
)

// Destination is a navigation instruction plus the context the target view
// needs to render.
type Destination struct {
	View     View
	Email    string
	Role     model.Role
	Rejected bool
}

// Resolve maps an identity (nil when anonymous) to its destination. Rules
// apply in priority order: anonymity, then verification, then approval,
// then the role-specific home.
func Resolve(identity *model.Identity) Destination {
	if identity == nil {
		return Destination{View: ViewLanding}
	}

	switch identity.Composite() {
	case model.StateUnverified:
		return Destination{View: ViewVerifyEmail, Email: identity.Email, Role: identity.Role}
	case model.StatePendingApproval:
		return Destination{View: ViewAwaitingApproval, Role: identity.Role}
	case model.StateRejected:
		return Destination{View: ViewAwaitingApproval, Role: identity.Role, Rejected: true}
	}

	switch identity.Role {
	case model.RoleStudent:
		return Destination{View: ViewStudentHome, Role: identity.Role}
	case model.RoleCompany:
		return Destination{View: ViewCompanyHome, Role: identity.Role}
	case model.RoleTPO:
		return Destination{View: ViewTPOHome, Role: identity.Role}
	case model.RoleSuperAdmin:
		return Destination{View: ViewSuperAdminHome, Role: identity.Role}
	default:
		return Destination{View: ViewProfile, Role: identity.Role}
	}
}
