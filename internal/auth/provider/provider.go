package provider

import (
	"context"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
)

// OAuthProvider defines the contract every external auth provider
// must implement. Implementations return credential facts only and
// must not perform exchange, linking, or session decisions; that is
// the broker's job.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "google", "github").
	Name() auth.ProviderKind

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode exchanges the authorization code for provider
	// credentials and returns them together with the normalized identity
	// facts extracted from them.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.ExternalCredential, error)
}
