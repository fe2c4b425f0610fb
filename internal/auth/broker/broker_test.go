package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
	"github.com/phol232/AppSaludable-sub000/internal/auth/provider"
)

type stubProvider struct {
	kind        auth.ProviderKind
	cred        *auth.ExternalCredential
	exchangeErr error

	gotCode     string
	gotVerifier string
}

func (p *stubProvider) Name() auth.ProviderKind { return p.kind }

func (p *stubProvider) AuthCodeURL(state, codeChallenge string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state) +
		"&code_challenge=" + url.QueryEscape(codeChallenge)
}

func (p *stubProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.ExternalCredential, error) {
	p.gotCode, p.gotVerifier = code, codeVerifier
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.cred, nil
}

// completeFlow returns an Opener that plays the browser's part: it reads
// the state from the authorization URL and delivers the redirect to the
// loopback server.
func completeFlow(t *testing.T, cb *CallbackServer, query func(state string) string) Opener {
	t.Helper()
	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		state := parsed.Query().Get("state")

		resp, err := http.Get(cb.URL() + "?" + query(state))
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

func googleCred() *auth.ExternalCredential {
	return &auth.ExternalCredential{
		Provider: auth.ProviderGoogle,
		IDToken:  "provider-id-token",
		Profile: auth.Identity{
			Provider:       auth.ProviderGoogle,
			ProviderUserID: "g-123",
			Email:          "mrios@example.com",
			EmailVerified:  true,
			GivenName:      "Maria",
			FamilyName:     "Rios",
		},
	}
}

func newTestBroker(t *testing.T, idpURL string, p *stubProvider, mutate func(*Options)) (*Broker, *CallbackServer) {
	t.Helper()

	cb, err := NewCallbackServer("127.0.0.1", 0)
	require.NoError(t, err)
	t.Cleanup(func() { cb.Close(context.Background()) })

	opts := Options{
		Providers:       provider.NewRegistry(p),
		Callback:        cb,
		IdentityBaseURL: idpURL,
		IdentityAPIKey:  "test-key",
		Open: completeFlow(t, cb, func(state string) string {
			return "code=good-code&state=" + url.QueryEscape(state)
		}),
	}
	if mutate != nil {
		mutate(&opts)
	}

	b, err := New(opts)
	require.NoError(t, err)
	return b, cb
}

func TestSignInSuccess(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signInWithIdp", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "google", req["provider"])
		assert.Equal(t, "provider-id-token", req["id_token"])

		json.NewEncoder(w).Encode(map[string]any{
			"id_token":  "idp-assertion",
			"email":     "mrios@example.com",
			"photo_url": "https://lh3.example/pic.png",
		})
	}))
	defer idp.Close()

	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, idp.URL, p, nil)

	res := b.SignIn(context.Background(), auth.ProviderGoogle)
	require.Equal(t, KindSuccess, res.Kind, res.Message)
	assert.Equal(t, "idp-assertion", res.Assertion)

	// The identity service's photo fills in when the provider gave none.
	require.NotNil(t, res.Profile)
	assert.Equal(t, "https://lh3.example/pic.png", res.Profile.AvatarURL)

	assert.Equal(t, "good-code", p.gotCode)
	assert.NotEmpty(t, p.gotVerifier)
}

func TestSignInAccountConflict(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"email":             "mrios@example.com",
			"need_confirmation": true,
			"pending_token":     "pending-abc",
		})
	}))
	defer idp.Close()

	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, idp.URL, p, nil)

	res := b.SignIn(context.Background(), auth.ProviderGoogle)
	require.Equal(t, KindAccountConflict, res.Kind)
	assert.Equal(t, "mrios@example.com", res.Email)
	require.NotNil(t, res.Pending)
	assert.Equal(t, auth.ProviderGoogle, res.Pending.Provider)
	assert.Equal(t, "pending-abc", res.Pending.Token)
}

func TestSignInUserCancelled(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, cb := newTestBroker(t, "http://unused.invalid", p, nil)
	b.open = completeFlow(t, cb, func(state string) string {
		return "error=access_denied&state=" + url.QueryEscape(state)
	})

	res := b.SignIn(context.Background(), auth.ProviderGoogle)
	assert.Equal(t, KindUserCancelled, res.Kind)
}

func TestSignInStateMismatch(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, cb := newTestBroker(t, "http://unused.invalid", p, nil)
	b.open = completeFlow(t, cb, func(string) string {
		return "code=good-code&state=forged"
	})

	res := b.SignIn(context.Background(), auth.ProviderGoogle)
	require.Equal(t, KindOtherFailure, res.Kind)
	assert.Contains(t, res.Message, "state mismatch")
}

func TestSignInAbandonedFlowTimesOut(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, "http://unused.invalid", p, func(o *Options) {
		// The user closes the browser; the redirect never arrives.
		o.Open = func(string) error { return nil }
		o.FlowTimeout = 50 * time.Millisecond
	})

	res := b.SignIn(context.Background(), auth.ProviderGoogle)
	assert.Equal(t, KindUserCancelled, res.Kind)
}

func TestSignInIdentityServiceUnreachable(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	// Nothing listens here.
	b, _ := newTestBroker(t, "http://127.0.0.1:1", p, nil)

	res := b.SignIn(context.Background(), auth.ProviderGoogle)
	assert.Equal(t, KindNetworkFailure, res.Kind)
}

func TestSignInEmailExistsWithoutPending(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "EMAIL_EXISTS"},
		})
	}))
	defer idp.Close()

	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, idp.URL, p, nil)

	res := b.SignIn(context.Background(), auth.ProviderGoogle)
	require.Equal(t, KindOtherFailure, res.Kind)
	assert.Contains(t, res.Message, "already registered")
}

func TestSignInUnknownProvider(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, "http://unused.invalid", p, nil)

	res := b.SignIn(context.Background(), auth.ProviderFacebook)
	assert.Equal(t, KindOtherFailure, res.Kind)
}

func TestSignInRejectsPasswordKind(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, "http://unused.invalid", p, nil)

	res := b.SignIn(context.Background(), auth.ProviderPassword)
	require.Equal(t, KindOtherFailure, res.Kind)
	assert.Contains(t, res.Message, "not federated")
}

func TestSignInMethodsFiltersUnknown(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:createAuthUri", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"sign_in_methods": []string{"password", "saml.corp", "google"},
		})
	}))
	defer idp.Close()

	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, idp.URL, p, nil)

	methods, err := b.SignInMethods(context.Background(), "mrios@example.com")
	require.NoError(t, err)
	assert.Equal(t, []auth.ProviderKind{auth.ProviderPassword, auth.ProviderGoogle}, methods)
}

func TestReauthenticatePassword(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signInWithPassword", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mrios@example.com", req["email"])
		assert.Equal(t, "secret", req["password"])

		json.NewEncoder(w).Encode(map[string]string{"id_token": "reauth-assertion"})
	}))
	defer idp.Close()

	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, idp.URL, p, func(o *Options) {
		o.Prompt = func(ctx context.Context, email string) (string, error) {
			assert.Equal(t, "mrios@example.com", email)
			return "secret", nil
		}
	})

	assertion, err := b.Reauthenticate(context.Background(), auth.ProviderPassword, "mrios@example.com")
	require.NoError(t, err)
	assert.Equal(t, "reauth-assertion", assertion)
}

func TestReauthenticatePasswordRejected(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "INVALID_PASSWORD"},
		})
	}))
	defer idp.Close()

	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, idp.URL, p, func(o *Options) {
		o.Prompt = func(ctx context.Context, email string) (string, error) { return "wrong", nil }
	})

	_, err := b.Reauthenticate(context.Background(), auth.ProviderPassword, "mrios@example.com")
	assert.ErrorIs(t, err, ErrReauthFailed)
}

func TestReauthenticateWithoutPrompter(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, "http://unused.invalid", p, nil)

	_, err := b.Reauthenticate(context.Background(), auth.ProviderPassword, "mrios@example.com")
	assert.ErrorIs(t, err, ErrReauthFailed)
}

func TestLink(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "reauth-assertion", req["id_token"])
		assert.Equal(t, "pending-abc", req["pending_token"])

		json.NewEncoder(w).Encode(map[string]string{"id_token": "linked-assertion"})
	}))
	defer idp.Close()

	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, idp.URL, p, nil)

	linked, err := b.Link(context.Background(), "reauth-assertion", &auth.PendingCredential{
		Provider: auth.ProviderGoogle,
		Token:    "pending-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "linked-assertion", linked)
}

func TestLinkRequiresPendingCredential(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, cred: googleCred()}
	b, _ := newTestBroker(t, "http://unused.invalid", p, nil)

	_, err := b.Link(context.Background(), "assertion", nil)
	assert.Error(t, err)

	_, err = b.Link(context.Background(), "assertion", &auth.PendingCredential{Provider: auth.ProviderGoogle})
	assert.Error(t, err)
}

func TestExchangeCodeFailureSurfaces(t *testing.T) {
	p := &stubProvider{kind: auth.ProviderGoogle, exchangeErr: errors.New("code already redeemed")}
	b, _ := newTestBroker(t, "http://unused.invalid", p, nil)

	res := b.SignIn(context.Background(), auth.ProviderGoogle)
	require.Equal(t, KindOtherFailure, res.Kind)
	assert.Contains(t, res.Message, "code already redeemed")
}

func TestCallbackRejectsStaleRedirect(t *testing.T) {
	cb, err := NewCallbackServer("127.0.0.1", 0)
	require.NoError(t, err)
	defer cb.Close(context.Background())

	// No flow armed: a stray redirect must not be swallowed silently.
	resp, err := http.Get(cb.URL() + "?code=stale&state=stale")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
