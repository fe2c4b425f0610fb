package resolver

import (
	"context"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
)

// Resolver recovers from an account conflict: an email already bound to a
// different provider than the one the user just signed in with. It is the
// ONLY place where conflict-recovery logic lives.
//
// A successful run returns the backend session token for the linked
// identity together with the identity-service assertion it was exchanged
// from, so the session can sign the assertion out later. Every failure is
// a *LinkFailedError.
type Resolver interface {
	Resolve(
		ctx context.Context,
		email string,
		pending *auth.PendingCredential,
	) (accessToken, assertion string, err error)
}

// LinkFailedError means conflict resolution could not link the pending
// credential. The user should sign in with their original method and link
// accounts from their profile.
type LinkFailedError struct {
	Reason string
}

func (e *LinkFailedError) Error() string {
	return "account linking failed: " + e.Reason
}
