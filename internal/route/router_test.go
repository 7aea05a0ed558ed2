package route

import (
	"testing"

	"elevate/portal/internal/model"
)

func TestResolveDestinations(t *testing.T) {
	cases := []struct {
		name     string
		identity *model.Identity
		want     Destination
	}{
		{
			name: "anonymous",
			want: Destination{View: ViewLanding},
		},
		{
			name:     "unverified student",
			identity: &model.Identity{Email: "a@b.c", Role: model.RoleStudent, Verified: false},
			want:     Destination{View: ViewVerifyEmail, Email: "a@b.c", Role: model.RoleStudent},
		},
		{
			name:     "company pending approval",
			identity: &model.Identity{Role: model.RoleCompany, Verified: true, ApprovalStatus: model.ApprovalPending},
			want:     Destination{View: ViewAwaitingApproval, Role: model.RoleCompany},
		},
		{
			name:     "tpo pending approval",
			identity: &model.Identity{Role: model.RoleTPO, Verified: true, ApprovalStatus: model.ApprovalPending},
			want:     Destination{View: ViewAwaitingApproval, Role: model.RoleTPO},
		},
		{
			name:     "company rejected",
			identity: &model.Identity{Role: model.RoleCompany, Verified: true, ApprovalStatus: model.ApprovalRejected},
			want:     Destination{View: ViewAwaitingApproval, Role: model.RoleCompany, Rejected: true},
		},
		{
			name:     "verified student",
			identity: &model.Identity{Role: model.RoleStudent, Verified: true},
			want:     Destination{View: ViewStudentHome, Role: model.RoleStudent},
		},
		{
			name:     "approved company",
			identity: &model.Identity{Role: model.RoleCompany, Verified: true, ApprovalStatus: model.ApprovalActive},
			want:     Destination{View: ViewCompanyHome, Role: model.RoleCompany},
		},
		{
			name:     "approved tpo",
			identity: &model.Identity{Role: model.RoleTPO, Verified: true, ApprovalStatus: model.ApprovalActive},
			want:     Destination{View: ViewTPOHome, Role: model.RoleTPO},
		},
		{
			name:     "super admin",
			identity: &model.Identity{Role: model.RoleSuperAdmin, Verified: true},
			want:     Destination{View: ViewSuperAdminHome, Role: model.RoleSuperAdmin},
		},
		{
			name:     "unknown role falls back to profile",
			identity: &model.Identity{Role: model.Role("mystery"), Verified: true},
			want:     Destination{View: ViewProfile, Role: model.Role("mystery")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.identity)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
			// Resolution is idempotent for the same identity.
			if again := Resolve(tc.identity); again != got {
				t.Fatalf("expected stable destination, got %+v then %+v", got, again)
			}
		})
	}
}

func TestResolveStudentImplicitlyApproved(t *testing.T) {
	// Students never need approval; a stray pending status must not strand them.
	identity := &model.Identity{Role: model.RoleStudent, Verified: true, ApprovalStatus: model.ApprovalPending}
	got := Resolve(identity)
	if got.View != ViewStudentHome {
		t.Fatalf("expected student home, got %s", got.View)
	}
}
