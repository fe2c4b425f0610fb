// Package api is the thin request/response client for the AppSaludable
// backend's authentication endpoints. No retries, no backoff: callers get
// the result of exactly one attempt.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrInvalidCredentials means the backend rejected a password login.
	// The session is unaffected.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized means an authenticated call was rejected because the
	// token is invalid or expired. The transport has already raised the
	// unauthorized signal by the time callers see this.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsNetwork reports whether err is a connectivity failure rather than a
// backend decision.
func IsNetwork(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue)
}

// UserProfile is the backend's authoritative view of the signed-in user.
type UserProfile struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	RoleID     int    `json:"role_id"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

// RegisterRequest carries the profile fields for account creation.
// RoleCode is the requested role; assignment happens in a separate call
// after registration and its failure does not revert the account.
type RegisterRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	RoleCode   string `json:"role_code,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to the backend's authentication endpoints.
type Client struct {
	base      string
	http      *http.Client
	transport *authTransport
}

// NewClient builds a Client whose requests carry the bearer token from the
// given source.
func NewClient(baseURL string, tokens TokenSource) *Client {
	t := &authTransport{
		base:   http.DefaultTransport,
		tokens: tokens,
	}
	return &Client{
		base:      baseURL,
		transport: t,
		http: &http.Client{
			Transport: t,
			Timeout:   15 * time.Second,
		},
	}
}

// OnUnauthorized registers the single global unauthorized callback. Any
// authenticated request answered with 401 invokes it, regardless of call
// site.
func (c *Client) OnUnauthorized(fn func()) {
	c.transport.setOnUnauthorized(fn)
}

// LoginPassword exchanges an identifier/secret pair for a session token.
func (c *Client) LoginPassword(ctx context.Context, identifier, secret string) (string, error) {
	body := map[string]string{"identifier": identifier, "secret": secret}

	var out tokenResponse
	err := c.do(withoutAuth(ctx), http.MethodPost, "/auth/login", body, &out)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusBadRequest) {
			return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, se.message)
		}
		return "", err
	}
	return out.AccessToken, nil
}

// LoginFederated exchanges an external identity assertion for a session
// token.
func (c *Client) LoginFederated(ctx context.Context, assertion string) (string, error) {
	body := map[string]string{"assertion": assertion}

	var out tokenResponse
	if err := c.do(withoutAuth(ctx), http.MethodPost, "/auth/login/federated", body, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// Register creates an account and returns its session token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	var out tokenResponse
	if err := c.do(withoutAuth(ctx), http.MethodPost, "/auth/register", req, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (*UserProfile, error) {
	var out UserProfile
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the session server-side. Callers clear local state
// whether or not this succeeds.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// ChangeRole updates the user's role and returns the refreshed profile.
func (c *Client) ChangeRole(ctx context.Context, userID int, roleCode string) (*UserProfile, error) {
	body := map[string]string{"role_code": roleCode}

	var out UserProfile
	path := fmt.Sprintf("/users/%d/role", userID)
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// statusError is a non-2xx backend response with its decoded message.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.status, e.message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		if er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		// ErrUnauthorized tracks the same condition the transport uses for
		// the unauthorized signal: a bearer was actually sent. A 401 with no
		// token attached says nothing about the session.
		if resp.StatusCode == http.StatusUnauthorized && carriedBearer(resp) {
			return fmt.Errorf("%w: %s", ErrUnauthorized, er.Error)
		}
		return &statusError{status: resp.StatusCode, message: er.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: failed to decode response: %w", err)
	}
	return nil
}
