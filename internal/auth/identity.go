package auth

import (
	"fmt"
	"strings"
)

// ProviderKind identifies a sign-in mechanism. It selects both the login
// path (password goes straight to the backend, everything else through the
// identity broker) and the re-authentication strategy during conflict
// resolution.
type ProviderKind string

const (
	ProviderPassword  ProviderKind = "password"
	ProviderGoogle    ProviderKind = "google"
	ProviderGitHub    ProviderKind = "github"
	ProviderFacebook  ProviderKind = "facebook"
	ProviderMicrosoft ProviderKind = "microsoft"
)

// Federated reports whether the kind requires an interactive flow through
// an external identity provider.
func (k ProviderKind) Federated() bool {
	switch k {
	case ProviderGoogle, ProviderGitHub, ProviderFacebook, ProviderMicrosoft:
		return true
	}
	return false
}

// ParseProviderKind validates a provider name coming from config, the CLI
// or the identity service's sign-in method list.
func ParseProviderKind(s string) (ProviderKind, error) {
	switch ProviderKind(s) {
	case ProviderPassword, ProviderGoogle, ProviderGitHub, ProviderFacebook, ProviderMicrosoft:
		return ProviderKind(s), nil
	}
	return "", fmt.Errorf("unknown provider: %s", s)
}

// SplitName splits a provider's single display-name field into given and
// family parts. Providers that deliver structured names never go through
// here.
func SplitName(full string) (given, family string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// Identity represents a normalized external authentication identity
// returned by an OAuth provider. It contains facts only, no decisions.
type Identity struct {
	Provider       ProviderKind // e.g. "google", "github"
	ProviderUserID string       // provider-scoped unique user identifier (sub)
	Email          string       // verified email returned by provider
	EmailVerified  bool         // whether provider asserts email ownership
	GivenName      string
	FamilyName     string
	AvatarURL      string // provider profile picture, hint only
}

// ExternalCredential is the raw provider credential handed to the identity
// service, bundled with the identity facts extracted from it. OIDC providers
// fill IDToken; plain OAuth 2.0 providers fill AccessToken.
type ExternalCredential struct {
	Provider    ProviderKind
	IDToken     string
	AccessToken string
	Profile     Identity
}

// PendingCredential is the credential left stranded by an account conflict.
// It is scoped to a single conflict-resolution run: linked or discarded,
// never persisted and never retried against a different email.
type PendingCredential struct {
	Provider ProviderKind
	Token    string // opaque pending token issued by the identity service
}
