package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"elevate/portal/internal/api"
	"elevate/portal/internal/model"
	"elevate/portal/internal/session"
)

// mockPortal is the slice of the remote API the gateway talks to.
type mockPortal struct {
	otpFailures int
	logoutCalls int
	logoutFail  bool
	deleteFail  bool
}

func (m *mockPortal) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		switch req.Email {
		case "student@example.local":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"token": "tok-student",
				"user": map[string]interface{}{
					"id": "u-student", "email": req.Email, "name": "Stu Dent",
					"role": "student", "isVerified": true,
				},
			})
		case "unverified@example.local":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"requiresVerification": true,
				"userId":               "u-unverified",
			})
		case "company@example.local":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"requiresApproval": true,
				"role":             "company",
			})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials", "message": "invalid email or password"})
		}
	})

	r.Post("/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"userId"`
			OTP    string `json:"otp"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.OTP != "123456" {
			m.otpFailures++
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_otp", "message": "code mismatch"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token": "tok-verified",
			"user": map[string]interface{}{
				"id": req.UserID, "email": "unverified@example.local", "name": "New User",
				"role": "company", "isVerified": true, "status": "pending",
			},
		})
	})

	r.Post("/auth/forgot-password", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "reset email sent"})
	})
	r.Post("/auth/reset-password", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
	})

	r.Post("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		m.logoutCalls++
		if m.logoutFail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	r.Put("/user/change-password", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "password changed"})
	})

	r.Put("/user/profile", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"user": map[string]interface{}{
				"id": "u-student", "email": "student@example.local", "name": req.Name,
				"role": "student", "isVerified": true,
			},
		})
	})

	r.Delete("/user/account", func(w http.ResponseWriter, _ *http.Request) {
		if m.deleteFail {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials", "message": "wrong password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newGateway(t *testing.T, portal *mockPortal) (*Gateway, *session.Store, *httptest.Server) {
	t.Helper()
	app := httptest.NewServer(portal.router())
	t.Cleanup(app.Close)

	store := session.NewStore(session.NewFilePersister(filepath.Join(t.TempDir(), "session.json")))
	client := api.New(app.URL, 2*time.Second, "test-client", store.Token)
	return NewGateway(client, store), store, app
}

func TestLoginSuccessPopulatesStore(t *testing.T) {
	gateway, store, _ := newGateway(t, &mockPortal{})

	result, err := gateway.Login(context.Background(), "student@example.local", "pw")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.Step != StepNone {
		t.Fatalf("expected no follow-up step, got %s", result.Step)
	}
	sess := store.Current()
	if sess == nil || sess.Token != "tok-student" || sess.Identity.Role != model.RoleStudent {
		t.Fatalf("expected populated session, got %+v", sess)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	gateway, store, _ := newGateway(t, &mockPortal{})

	result, err := gateway.Login(context.Background(), "nobody@example.local", "pw")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result carrying no userId, got %+v", result)
	}
	if store.Current() != nil {
		t.Fatalf("expected untouched store after failed login")
	}
}

func TestLoginUnverifiedIsPartialSuccess(t *testing.T) {
	gateway, store, _ := newGateway(t, &mockPortal{})

	result, err := gateway.Login(context.Background(), "unverified@example.local", "pw")
	if err != nil {
		t.Fatalf("expected partial success, got error %v", err)
	}
	if result.Step != StepVerifyEmail || result.UserID != "u-unverified" {
		t.Fatalf("expected verify step with userId, got %+v", result)
	}
	if store.Current() != nil {
		t.Fatalf("store must stay empty until OTP succeeds")
	}
}

func TestLoginApprovalPending(t *testing.T) {
	gateway, store, _ := newGateway(t, &mockPortal{})

	result, err := gateway.Login(context.Background(), "company@example.local", "pw")
	if err != nil {
		t.Fatalf("expected partial success, got error %v", err)
	}
	if result.Step != StepAwaitApproval || result.Role != model.RoleCompany {
		t.Fatalf("expected approval step with company role, got %+v", result)
	}
	if store.Current() != nil {
		t.Fatalf("store must stay empty while approval is pending")
	}
}

func TestVerifyOTPFailuresLeaveStoreEmpty(t *testing.T) {
	portal := &mockPortal{}
	gateway, store, _ := newGateway(t, portal)

	for i := 0; i < 3; i++ {
		if _, err := gateway.VerifyOTP(context.Background(), "u-unverified", "000000"); err == nil {
			t.Fatalf("expected OTP rejection on attempt %d", i+1)
		}
		if store.Current() != nil {
			t.Fatalf("store mutated by failed OTP attempt %d", i+1)
		}
	}
	if portal.otpFailures != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", portal.otpFailures)
	}

	identity, err := gateway.VerifyOTP(context.Background(), "u-unverified", "123456")
	if err != nil {
		t.Fatalf("expected OTP success: %v", err)
	}
	sess := store.Current()
	if sess == nil || sess.Token != "tok-verified" {
		t.Fatalf("expected populated session after OTP, got %+v", sess)
	}
	if identity.Composite() != model.StatePendingApproval {
		t.Fatalf("expected pending-approval composite, got %s", identity.Composite())
	}
}

func TestResetPasswordNeverAuthenticates(t *testing.T) {
	gateway, store, _ := newGateway(t, &mockPortal{})

	if _, err := gateway.ForgotPassword(context.Background(), "student@example.local"); err != nil {
		t.Fatalf("forgot-password failed: %v", err)
	}
	msg, err := gateway.ResetPassword(context.Background(), "reset-tok", "new-pw")
	if err != nil {
		t.Fatalf("reset-password failed: %v", err)
	}
	if msg == "" {
		t.Fatalf("expected a confirmation message")
	}
	if store.Current() != nil {
		t.Fatalf("reset-password must not authenticate")
	}
}

func TestChangePasswordRejectsProviderLinkedBeforeNetwork(t *testing.T) {
	// The mock portal would accept the request; the gateway must refuse first.
	gateway, store, app := newGateway(t, &mockPortal{})
	app.Close()

	store.Set("tok", &model.Identity{ID: "u", Email: "g@example.local", Role: model.RoleStudent, Verified: true, ProviderLinked: true})
	err := gateway.ChangePassword(context.Background(), "old", "new")
	if !errors.Is(err, ErrManagedExternally) {
		t.Fatalf("expected ErrManagedExternally, got %v", err)
	}
}

func TestChangePasswordRequiresSession(t *testing.T) {
	gateway, _, _ := newGateway(t, &mockPortal{})
	if err := gateway.ChangePassword(context.Background(), "old", "new"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestUpdateProfileRefreshesIdentityKeepsToken(t *testing.T) {
	gateway, store, _ := newGateway(t, &mockPortal{})
	store.Set("tok-student", &model.Identity{ID: "u-student", Email: "student@example.local", Name: "Old Name", Role: model.RoleStudent, Verified: true})

	name := "New Name"
	identity, err := gateway.UpdateProfile(context.Background(), api.ProfileUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update profile failed: %v", err)
	}
	if identity.Name != "New Name" {
		t.Fatalf("expected refreshed name, got %q", identity.Name)
	}
	sess := store.Current()
	if sess.Token != "tok-student" {
		t.Fatalf("token must not rotate on profile update, got %q", sess.Token)
	}
	if sess.Identity.Name != "New Name" {
		t.Fatalf("stored identity not refreshed: %+v", sess.Identity)
	}
}

func TestLogoutAlwaysClearsLocally(t *testing.T) {
	portal := &mockPortal{logoutFail: true}
	gateway, store, _ := newGateway(t, portal)
	store.Set("tok", testStudent())

	gateway.Logout(context.Background())
	if store.Current() != nil {
		t.Fatalf("expected cleared store despite remote failure")
	}
	if portal.logoutCalls != 1 {
		t.Fatalf("expected one best-effort remote call, got %d", portal.logoutCalls)
	}
}

func TestLogoutSurvivesDeadServer(t *testing.T) {
	gateway, store, app := newGateway(t, &mockPortal{})
	store.Set("tok", testStudent())
	app.Close()

	gateway.Logout(context.Background())
	if store.Current() != nil {
		t.Fatalf("local clearing must never be blocked by a network failure")
	}
}

func TestDeleteAccount(t *testing.T) {
	portal := &mockPortal{deleteFail: true}
	gateway, store, _ := newGateway(t, portal)
	store.Set("tok", testStudent())

	if err := gateway.DeleteAccount(context.Background(), "wrong-pw"); err == nil {
		t.Fatalf("expected rejection with wrong password")
	}
	if store.Current() == nil {
		t.Fatalf("store must be untouched when deletion fails")
	}

	portal.deleteFail = false
	if err := gateway.DeleteAccount(context.Background(), "pw"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if store.Current() != nil {
		t.Fatalf("expected cleared store after deletion")
	}
}

func testStudent() *model.Identity {
	return &model.Identity{ID: "u-student", Email: "student@example.local", Role: model.RoleStudent, Verified: true}
}
