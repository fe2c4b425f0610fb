package broker

import "github.com/phol232/AppSaludable-sub000/internal/auth"

// ResultKind is the closed set of broker outcomes. Identity-service and
// provider error vocabulary is translated into these kinds inside the
// broker; no caller may depend on anything more specific.
type ResultKind int

const (
	// KindSuccess carries an assertion ready for the backend exchange.
	KindSuccess ResultKind = iota

	// KindUserCancelled means the user abandoned the interactive flow.
	// Not an error: callers return to their pre-attempt state.
	KindUserCancelled

	// KindNetworkFailure means the provider or identity service could not
	// be reached.
	KindNetworkFailure

	// KindAccountConflict means the email is already bound to a different
	// provider. The pending credential is handed to the conflict resolver.
	KindAccountConflict

	// KindOtherFailure covers everything else, with a message.
	KindOtherFailure
)

// SignInResult is the broker's tagged result. Fields other than Kind are
// only meaningful for the kinds documented on them.
type SignInResult struct {
	Kind ResultKind

	// Success
	Assertion string
	Profile   *auth.Identity

	// AccountConflict
	Email   string
	Pending *auth.PendingCredential

	// NetworkFailure / OtherFailure
	Message string
}

func success(assertion string, profile *auth.Identity) SignInResult {
	return SignInResult{Kind: KindSuccess, Assertion: assertion, Profile: profile}
}

func cancelled() SignInResult {
	return SignInResult{Kind: KindUserCancelled}
}

func networkFailure(err error) SignInResult {
	return SignInResult{Kind: KindNetworkFailure, Message: err.Error()}
}

func conflict(email string, pending *auth.PendingCredential) SignInResult {
	return SignInResult{Kind: KindAccountConflict, Email: email, Pending: pending}
}

func otherFailure(msg string) SignInResult {
	return SignInResult{Kind: KindOtherFailure, Message: msg}
}
