package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
}

func (s *staticTokens) Token() (string, bool) {
	return s.token, s.token != ""
}

func TestLoginPasswordSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		// Login never carries a stale bearer.
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mrios", body["identifier"])
		assert.Equal(t, "secret", body["secret"])

		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{token: "stale-token"})

	token, err := client.LoginPassword(context.Background(), "mrios", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestLoginPasswordRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "bad credentials"})
	}))
	defer server.Close()

	var signals int32
	client := NewClient(server.URL, &staticTokens{token: "stale-token"})
	client.OnUnauthorized(func() { atomic.AddInt32(&signals, 1) })

	_, err := client.LoginPassword(context.Background(), "mrios", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// A rejected password is not an expired session.
	assert.Zero(t, atomic.LoadInt32(&signals))
}

func TestProfileCarriesBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(UserProfile{ID: 7, Username: "mrios", RoleID: 1})
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{token: "tok-1"})

	profile, err := client.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, profile.ID)
	assert.Equal(t, "mrios", profile.Username)
}

func TestUnauthorizedSignalFiresOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var signals int32
	client := NewClient(server.URL, &staticTokens{token: "expired"})
	client.OnUnauthorized(func() { atomic.AddInt32(&signals, 1) })

	_, err := client.Profile(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&signals))
}

func TestUnauthorizedSignalSkippedWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var signals int32
	client := NewClient(server.URL, &staticTokens{})
	client.OnUnauthorized(func() { atomic.AddInt32(&signals, 1) })

	_, err := client.Profile(context.Background())
	require.Error(t, err)

	// No bearer was sent, so the 401 says nothing about the session:
	// no signal, and no ErrUnauthorized either.
	assert.Zero(t, atomic.LoadInt32(&signals))
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestLoginFederated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login/federated", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "assertion-1", body["assertion"])

		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-fed"})
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{})

	token, err := client.LoginFederated(context.Background(), "assertion-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-fed", token)
}

func TestRegister(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/register", r.URL.Path)

		var req RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mrios", req.Username)
		assert.Equal(t, "NUTRITIONIST", req.RoleCode)

		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-new"})
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{})

	token, err := client.Register(context.Background(), RegisterRequest{
		Username: "mrios",
		Email:    "mrios@example.com",
		Password: "secret",
		RoleCode: "NUTRITIONIST",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-new", token)
}

func TestChangeRole(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/users/7/role", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "NUTRITIONIST", body["role_code"])

		json.NewEncoder(w).Encode(UserProfile{ID: 7, Username: "mrios", RoleID: 2})
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{token: "tok-1"})

	profile, err := client.ChangeRole(context.Background(), 7, "NUTRITIONIST")
	require.NoError(t, err)
	assert.Equal(t, 2, profile.RoleID)
}

func TestLogout(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{token: "tok-1"})

	require.NoError(t, client.Logout(context.Background()))
	assert.Equal(t, "/auth/logout", path)
}

func TestIsNetwork(t *testing.T) {
	// Nothing listens here.
	client := NewClient("http://127.0.0.1:1", &staticTokens{})

	_, err := client.Profile(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetwork(err))

	assert.False(t, IsNetwork(ErrUnauthorized))
	assert.False(t, IsNetwork(nil))
}
