package api

import (
	"context"
	"net/http"
	"sync"
)

// TokenSource is the read side of the session token store. The transport
// never mutates the store; teardown is the listener's job.
type TokenSource interface {
	Token() (string, bool)
}

// unexported, collision-proof context key
type skipAuthContextKeyType struct{}

var skipAuthKey = skipAuthContextKeyType{}

// withoutAuth marks a request as unauthenticated: no bearer injection and
// no unauthorized signal. Login and register responses must never tear the
// session down, a rejected password is not an expired token.
func withoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthKey, true)
}

func isWithoutAuth(ctx context.Context) bool {
	v, _ := ctx.Value(skipAuthKey).(bool)
	return v
}

// carriedBearer reports whether the request behind resp went out with a
// bearer attached. resp.Request is the request the underlying transport
// sent, which is the clone carrying the injected Authorization header.
func carriedBearer(resp *http.Response) bool {
	return resp.Request != nil && resp.Request.Header.Get("Authorization") != ""
}

// authTransport injects the bearer token into outgoing requests and raises
// the global unauthorized signal when an authenticated call comes back 401.
// This is the single place token-expiry is detected, no matter which flow
// issued the call.
type authTransport struct {
	base   http.RoundTripper
	tokens TokenSource

	mu             sync.RWMutex
	onUnauthorized func()
}

func (t *authTransport) setOnUnauthorized(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUnauthorized = fn
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	carriedBearer := false

	if !isWithoutAuth(req.Context()) {
		if tok, ok := t.tokens.Token(); ok {
			// Clone before mutating: RoundTrippers must not modify the
			// caller's request.
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+tok)
			carriedBearer = true
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && carriedBearer {
		t.mu.RLock()
		fn := t.onUnauthorized
		t.mu.RUnlock()
		if fn != nil {
			fn()
		}
	}

	return resp, nil
}
