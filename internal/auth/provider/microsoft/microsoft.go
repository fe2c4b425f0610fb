package microsoft

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
)

const providerName = auth.ProviderMicrosoft

// Provider implements OAuth + OIDC authentication against Microsoft
// Entra ID. It returns credential facts only; no session decisions are
// made here.
type Provider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// New initializes a Microsoft OIDC provider using discovery.
// issuer is the tenant issuer URL, e.g.
// https://login.microsoftonline.com/common/v2.0
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	redirectURL string,
) (*Provider, error) {

	if issuer == "" || clientID == "" || redirectURL == "" {
		return nil, errors.New("microsoft oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init microsoft oidc provider: %w", err)
	}

	// The common tenant substitutes the tenant ID into the issuer claim,
	// so the discovery issuer never matches token issuers exactly.
	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID:        clientID,
		SkipIssuerCheck: true,
	})

	oauthCfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint:    oidcProvider.Endpoint(),
		Scopes: []string{
			oidc.ScopeOpenID,
			"email",
			"profile",
		},
	}

	return &Provider{
		oauthConfig: oauthCfg,
		verifier:    verifier,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() auth.ProviderKind {
	return providerName
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// ExchangeCode exchanges the authorization code and returns the provider
// credential. This method MUST NOT perform linking or session logic.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.ExternalCredential, error) {

	log := logger.Named("microsoft")

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		log.Error("microsoft token exchange failed", zap.Error(err))
		return nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("microsoft did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		log.Error("microsoft id_token verification failed", zap.Error(err))
		return nil, err
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		PreferredUser string `json:"preferred_username"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("microsoft id_token claims parse failed: %w", err)
	}

	email := claims.Email
	if email == "" {
		// Work/school accounts often carry the address only here.
		email = claims.PreferredUser
	}

	if claims.Subject == "" || email == "" {
		return nil, errors.New("microsoft id_token missing required claims")
	}

	given, family := auth.SplitName(claims.Name)

	return &auth.ExternalCredential{
		Provider: providerName,
		IDToken:  rawIDToken,
		Profile: auth.Identity{
			Provider:       providerName,
			ProviderUserID: claims.Subject,
			Email:          email,
			EmailVerified:  true,
			GivenName:      given,
			FamilyName:     family,
		},
	}, nil
}
