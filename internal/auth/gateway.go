// Package auth is the gateway for every identity-mutating portal operation.
// It normalises remote outcomes into discriminated results and is the only
// caller of the session store's mutation methods. All operations leave the
// store untouched on failure; a token is never stored without its identity.
package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"elevate/portal/internal/api"
	"elevate/portal/internal/model"
	"elevate/portal/internal/session"
)

var (
	// ErrInvalidCredentials is a wrong email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotAuthenticated is returned by operations that need an active session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrManagedExternally rejects password operations on provider-linked
	// accounts before any network call.
	ErrManagedExternally = errors.New("password is managed by the identity provider")
)

// Step is the required follow-up after a successful login.
type Step string

const (
	StepNone          Step = "none"
	StepVerifyEmail   Step = "verify-email"
	StepAwaitApproval Step = "await-approval"
)

// LoginResult is a discriminated login outcome. Verification-required and
// approval-pending are partial successes, not errors: they carry the context
// needed to continue (userId for the OTP exchange, role for the waiting view).
type LoginResult struct {
	Step     Step
	UserID   string
	Email    string
	Role     model.Role
	Identity *model.Identity
}

type Gateway struct {
	client *api.Client
	store  *session.Store
}

func NewGateway(client *api.Client, store *session.Store) *Gateway {
	return &Gateway{client: client, store: store}
}

// Login exchanges credentials for a session. On a full success the session
// store is populated and the returned step reflects the identity's
// verification/approval state. On a partial success the store is untouched.
func (g *Gateway) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	resp, err := g.client.Login(ctx, email, password)
	if err != nil {
		loginAttempts.WithLabelValues("failure").Inc()
		var apiErr *api.Error
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	switch {
	case resp.RequiresVerification:
		loginAttempts.WithLabelValues("verification_required").Inc()
		return &LoginResult{Step: StepVerifyEmail, UserID: resp.UserID, Email: email}, nil

	case resp.RequiresApproval:
		loginAttempts.WithLabelValues("approval_pending").Inc()
		role, _ := model.ParseRole(resp.Role)
		return &LoginResult{Step: StepAwaitApproval, Role: role}, nil

	case resp.Token != "" && resp.User != nil:
		g.store.Set(resp.Token, resp.User)
		loginAttempts.WithLabelValues("success").Inc()
		return &LoginResult{Step: stepFor(resp.User), UserID: resp.User.ID, Email: resp.User.Email, Role: resp.User.Role, Identity: resp.User}, nil

	default:
		loginAttempts.WithLabelValues("failure").Inc()
		return nil, &api.Error{Status: http.StatusBadGateway, Code: "malformed_response", Message: "login response missing token or user"}
	}
}

func stepFor(identity *model.Identity) Step {
	switch identity.Composite() {
	case model.StateUnverified:
		return StepVerifyEmail
	case model.StatePendingApproval, model.StateRejected:
		return StepAwaitApproval
	default:
		return StepNone
	}
}

// VerifyOTP exchanges a one-time code for a full session. Any failure is
// surfaced verbatim and the session store is untouched.
func (g *Gateway) VerifyOTP(ctx context.Context, userID, code string) (*model.Identity, error) {
	payload, err := g.client.VerifyOTP(ctx, userID, code)
	if err != nil {
		otpAttempts.WithLabelValues("failure").Inc()
		return nil, err
	}
	g.store.Set(payload.Token, payload.User)
	otpAttempts.WithLabelValues("success").Inc()
	return payload.User, nil
}

// ResendOTP requests a fresh one-time code for a pending verification.
func (g *Gateway) ResendOTP(ctx context.Context, userID string) error {
	return g.client.ResendOTP(ctx, userID)
}

// ForgotPassword is stateless request/response.
func (g *Gateway) ForgotPassword(ctx context.Context, email string) (string, error) {
	return g.client.ForgotPassword(ctx, email)
}

// ResetPassword never auto-authenticates; the caller logs in again.
func (g *Gateway) ResetPassword(ctx context.Context, resetToken, newPassword string) (string, error) {
	return g.client.ResetPassword(ctx, resetToken, newPassword)
}

// ChangePassword requires an active session and does not rotate the token.
// Provider-linked accounts are rejected before any network call.
func (g *Gateway) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	sess := g.store.Current()
	if sess == nil {
		return ErrNotAuthenticated
	}
	if sess.Identity.ProviderLinked {
		return ErrManagedExternally
	}
	return g.client.ChangePassword(ctx, currentPassword, newPassword)
}

// UpdateProfile pushes display-attribute changes and refreshes the stored
// identity with the portal's response, keeping the existing token.
func (g *Gateway) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*model.Identity, error) {
	sess := g.store.Current()
	if sess == nil {
		return nil, ErrNotAuthenticated
	}
	identity, err := g.client.UpdateProfile(ctx, update)
	if err != nil {
		return nil, err
	}
	g.store.Set(sess.Token, identity)
	return identity, nil
}

// Logout invalidates the session remotely on a best-effort basis. The local
// store is always cleared; a network failure never blocks that.
func (g *Gateway) Logout(ctx context.Context) {
	if g.store.Current() != nil {
		remoteCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := g.client.Logout(remoteCtx); err != nil {
			log.Printf("remote logout failed, clearing locally anyway: %v", err)
		}
		cancel()
	}
	g.store.Clear()
}

// DeleteAccount removes the account. Confirmation is collected above this
// layer; the store is cleared only on success.
func (g *Gateway) DeleteAccount(ctx context.Context, password string) error {
	if g.store.Current() == nil {
		return ErrNotAuthenticated
	}
	if err := g.client.DeleteAccount(ctx, password); err != nil {
		return err
	}
	g.store.Clear()
	return nil
}

// Me confirms the current token with the portal. A token that is plainly
// expired is rejected locally, shaped as the 401 the portal would return,
// so session hydration can skip the doomed round trip.
func (g *Gateway) Me(ctx context.Context) (*model.Identity, error) {
	token := g.store.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	if TokenExpired(token, time.Now().UTC()) {
		return nil, &api.Error{Status: http.StatusUnauthorized, Code: "token_expired"}
	}
	return g.client.Me(ctx)
}
