package model

import "time"

// Role is the closed set of account roles the portal recognises.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleStudent    Role = "student"
	RoleCompany    Role = "company"
	RoleTPO        Role = "tpo"
	RoleSuperAdmin Role = "super-admin"
)

// ParseRole maps a server-supplied role string onto the closed enumeration.
// Unknown values come back as-is with ok=false so callers can fall through
// to a generic destination instead of guessing.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleGuest, RoleStudent, RoleCompany, RoleTPO, RoleSuperAdmin:
		return Role(raw), true
	default:
		return Role(raw), false
	}
}

// RequiresApproval reports whether accounts of this role need an
// administrative approval decision before they are usable.
func (r Role) RequiresApproval() bool {
	return r == RoleCompany || r == RoleTPO
}

// ApprovalStatus is the administrative decision on roles that need one.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalActive   ApprovalStatus = "active"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Identity is the authenticated user record as the portal reports it.
type Identity struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	Role           Role           `json:"role"`
	Verified       bool           `json:"isVerified"`
	ApprovalStatus ApprovalStatus `json:"status,omitempty"`
	ProviderLinked bool           `json:"isGoogleUser,omitempty"`
	Picture        string         `json:"profilePicture,omitempty"`
	CreatedAt      time.Time      `json:"createdAt,omitempty"`
}

// CompositeState classifies an Identity for navigation purposes.
type CompositeState string

const (
	StateUnverified      CompositeState = "unverified"
	StatePendingApproval CompositeState = "pending-approval"
	StateActive          CompositeState = "active"
	StateRejected        CompositeState = "rejected"
)

// Composite derives the navigation state from verification, approval and
// role. Student and super-admin accounts are implicitly approved once
// verified.
func (i *Identity) Composite() CompositeState {
	if !i.Verified {
		return StateUnverified
	}
	if i.ApprovalStatus == ApprovalRejected {
		return StateRejected
	}
	if i.Role.RequiresApproval() && i.ApprovalStatus == ApprovalPending {
		return StatePendingApproval
	}
	return StateActive
}

// Session pairs a bearer token with the Identity it authorises. The two are
// always set and cleared together; a Session value never carries one without
// the other.
type Session struct {
	Token    string    `json:"token"`
	Identity *Identity `json:"user"`
}

// Notification is one entry of the remote feed.
type Notification struct {
	ID        string    `json:"_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"isRead"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
