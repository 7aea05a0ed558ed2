// Package api is the HTTP client for the remote placement-portal API. It
// owns transport concerns only: request shaping, bearer credentials, and
// translating non-2xx responses into typed errors. Session and cache
// semantics live with the callers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"elevate/portal/internal/model"
)

// Error is a non-2xx response from the portal.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("portal: %s (%d)", e.Message, e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("portal: %s (%d)", e.Code, e.Status)
	}
	return fmt.Sprintf("portal: status %d", e.Status)
}

// IsUnauthorized reports whether err is a 401-class rejection from the
// portal, as opposed to a transport failure or any other API error.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// TokenSource supplies the current bearer token, or "" when anonymous.
type TokenSource func() string

type Client struct {
	baseURL  string
	clientID string
	token    TokenSource
	http     *http.Client
}

func New(baseURL string, timeout time.Duration, clientID string, token TokenSource) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

// LoginResponse covers the three shapes POST /auth/login can return: a full
// session, a verification-required partial result, or an approval-pending
// partial result.
type LoginResponse struct {
	Token                string          `json:"token"`
	User                 *model.Identity `json:"user"`
	RequiresVerification bool            `json:"requiresVerification"`
	RequiresApproval     bool            `json:"requiresApproval"`
	UserID               string          `json:"userId"`
	Role                 string          `json:"role"`
	Message              string          `json:"message"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AuthPayload is a complete credential exchange result.
type AuthPayload struct {
	Token string          `json:"token"`
	User  *model.Identity `json:"user"`
}

func (c *Client) VerifyOTP(ctx context.Context, userID, otp string) (*AuthPayload, error) {
	var resp AuthPayload
	body := map[string]string{"userId": userID, "otp": otp}
	if err := c.do(ctx, http.MethodPost, "/auth/verify-otp", body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, &Error{Status: http.StatusBadGateway, Code: "malformed_response", Message: "verify-otp response missing token or user"}
	}
	return &resp, nil
}

func (c *Client) ResendOTP(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/auth/resend-otp", map[string]string{"userId": userID}, nil)
}

type messageResponse struct {
	Message string `json:"message"`
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) ResetPassword(ctx context.Context, resetToken, newPassword string) (string, error) {
	var resp messageResponse
	body := map[string]string{"token": resetToken, "password": newPassword}
	if err := c.do(ctx, http.MethodPost, "/auth/reset-password", body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Logout is best-effort remote invalidation; callers clear local state
// regardless of the outcome here.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

type meResponse struct {
	User *model.Identity `json:"user"`
}

func (c *Client) Me(ctx context.Context) (*model.Identity, error) {
	var resp meResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &Error{Status: http.StatusBadGateway, Code: "malformed_response", Message: "me response missing user"}
	}
	return resp.User, nil
}

// ProfileUpdate carries only the fields being changed.
type ProfileUpdate struct {
	Name    *string `json:"name,omitempty"`
	Picture *string `json:"profilePicture,omitempty"`
}

type profileResponse struct {
	Success bool            `json:"success"`
	User    *model.Identity `json:"user"`
	Message string          `json:"message"`
}

func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*model.Identity, error) {
	var resp profileResponse
	if err := c.do(ctx, http.MethodPut, "/user/profile", update, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &Error{Status: http.StatusBadGateway, Code: "malformed_response", Message: "profile response missing user"}
	}
	return resp.User, nil
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	body := map[string]string{"currentPassword": currentPassword, "newPassword": newPassword}
	return c.do(ctx, http.MethodPut, "/user/change-password", body, nil)
}

func (c *Client) DeleteAccount(ctx context.Context, password string) error {
	return c.do(ctx, http.MethodDelete, "/user/account", map[string]string{"password": password}, nil)
}

// Feed is one full snapshot of the remote notification state. UnreadCount is
// the server's authoritative counter, not derived from the entries.
type Feed struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

type feedResponse struct {
	Success bool `json:"success"`
	Data    Feed `json:"data"`
}

func (c *Client) Notifications(ctx context.Context, limit int) (*Feed, error) {
	var resp feedResponse
	path := "/notifications"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) MarkRead(ctx context.Context, ids []string) error {
	body := map[string][]string{"notificationIds": ids}
	return c.do(ctx, http.MethodPut, "/notifications/mark-read", body, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/mark-all-read", nil, nil)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set("X-Client-Id", c.clientID)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		var parsed errorBody
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
			apiErr.Code = parsed.Error
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode portal response: %w", err)
	}
	return nil
}
