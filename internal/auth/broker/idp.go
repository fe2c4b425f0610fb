package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
)

// Identity-service error codes the broker knows how to translate.
// Everything else is an OtherFailure.
const (
	idpCodeEmailExists        = "EMAIL_EXISTS"
	idpCodeInvalidPassword    = "INVALID_PASSWORD"
	idpCodeEmailNotFound      = "EMAIL_NOT_FOUND"
	idpCodeInvalidIdpResponse = "INVALID_IDP_RESPONSE"
)

// idpError is a structured rejection from the identity service.
type idpError struct {
	Code string
}

func (e *idpError) Error() string {
	return "identity service: " + e.Code
}

// assertionResponse is the identity service's answer to a credential
// sign-in. When NeedConfirmation is set the email is already bound to a
// different provider and PendingToken carries the stranded credential.
type assertionResponse struct {
	IDToken          string   `json:"id_token"`
	Email            string   `json:"email"`
	PhotoURL         string   `json:"photo_url,omitempty"`
	NeedConfirmation bool     `json:"need_confirmation,omitempty"`
	PendingToken     string   `json:"pending_token,omitempty"`
	SignInMethods    []string `json:"sign_in_methods,omitempty"`
}

// idpClient talks to the external identity service: credential exchange,
// sign-in method discovery, linking and sign-out.
type idpClient struct {
	base   string
	apiKey string
	http   *http.Client
}

func newIDPClient(baseURL, apiKey string) *idpClient {
	return &idpClient{
		base:   baseURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

type signInWithIdpRequest struct {
	Provider     string `json:"provider"`
	IDToken      string `json:"id_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	PendingToken string `json:"pending_token,omitempty"`
}

// signInWithIdp exchanges a provider credential for an identity assertion.
// A non-empty pendingToken performs the linking variant: the pending
// credential is attached to the account the id_token belongs to.
func (c *idpClient) signInWithIdp(ctx context.Context, cred *auth.ExternalCredential, idToken, pendingToken string) (*assertionResponse, error) {
	req := signInWithIdpRequest{
		PendingToken: pendingToken,
	}
	if cred != nil {
		req.Provider = string(cred.Provider)
		req.IDToken = cred.IDToken
		req.AccessToken = cred.AccessToken
	}
	if idToken != "" {
		// Linking: the caller is already signed in at the identity service.
		req.IDToken = idToken
	}

	var out assertionResponse
	if err := c.post(ctx, "/v1/accounts:signInWithIdp", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *idpClient) signInWithPassword(ctx context.Context, email, password string) (*assertionResponse, error) {
	body := map[string]string{"email": email, "password": password}

	var out assertionResponse
	if err := c.post(ctx, "/v1/accounts:signInWithPassword", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *idpClient) fetchSignInMethods(ctx context.Context, email string) ([]string, error) {
	body := map[string]string{"email": email}

	var out assertionResponse
	if err := c.post(ctx, "/v1/accounts:createAuthUri", body, &out); err != nil {
		return nil, err
	}
	return out.SignInMethods, nil
}

func (c *idpClient) signOut(ctx context.Context, assertion string) error {
	body := map[string]string{"id_token": assertion}
	return c.post(ctx, "/v1/accounts:signOut", body, nil)
}

func (c *idpClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("broker: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("broker: identity service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &er)
		if er.Error.Message == "" {
			return fmt.Errorf("broker: identity service returned %d", resp.StatusCode)
		}
		return &idpError{Code: er.Error.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("broker: failed to decode identity service response: %w", err)
	}
	return nil
}

func isIDPCode(err error, code string) bool {
	var ie *idpError
	return errors.As(err, &ie) && ie.Code == code
}
