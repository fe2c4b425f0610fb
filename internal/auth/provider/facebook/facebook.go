// Package facebook implements OAuth 2.0 authentication with Facebook.
// Identity facts come from the Graph API; there is no ID token.
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
)

const (
	providerName  = auth.ProviderFacebook
	authEndpoint  = "https://www.facebook.com/v18.0/dialog/oauth"
	tokenEndpoint = "https://graph.facebook.com/v18.0/oauth/access_token"
	meEndpoint    = "https://graph.facebook.com/v18.0/me"
)

type Provider struct {
	oauthConfig *oauth2.Config
	http        *http.Client
}

func New(clientID, clientSecret, redirectURL string) (*Provider, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("facebook oauth config missing required fields")
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authEndpoint,
				TokenURL: tokenEndpoint,
			},
			Scopes: []string{"email", "public_profile"},
		},
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() auth.ProviderKind {
	return providerName
}

// AuthCodeURL builds the authorization URL.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.ExternalCredential, error) {

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("facebook token exchange failed: %w", err)
	}

	profile, err := p.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	if profile.ID == "" || profile.Email == "" {
		return nil, errors.New("facebook profile missing required fields")
	}

	return &auth.ExternalCredential{
		Provider:    providerName,
		AccessToken: token.AccessToken,
		Profile: auth.Identity{
			Provider:       providerName,
			ProviderUserID: profile.ID,
			Email:          profile.Email,
			// Facebook only returns addresses it has verified.
			EmailVerified: true,
			GivenName:     profile.FirstName,
			FamilyName:    profile.LastName,
			AvatarURL:     profile.Picture.Data.URL,
		},
	}, nil
}

type graphProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Picture   struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (p *Provider) fetchProfile(ctx context.Context, accessToken string) (*graphProfile, error) {
	q := url.Values{}
	q.Set("fields", "id,email,first_name,last_name,picture.type(large)")
	q.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facebook profile fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facebook profile fetch returned %d", resp.StatusCode)
	}

	var profile graphProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode facebook profile: %w", err)
	}
	return &profile, nil
}
