// Package broker wraps the external identity service and the federated
// OAuth providers behind a closed result set. It owns every interactive
// sign-in: state, PKCE, the loopback redirect, the credential exchange and
// the translation of provider/service errors.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
	"github.com/phol232/AppSaludable-sub000/internal/auth/provider"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
	"github.com/phol232/AppSaludable-sub000/internal/utils"
)

// Opener opens the system browser at the given URL. Injected so the CLI,
// a desktop shell and tests can each supply their own.
type Opener func(url string) error

// CredentialPrompter collects the user's password during conflict
// resolution through the password method. The secret is used once and
// never stored.
type CredentialPrompter func(ctx context.Context, email string) (string, error)

// ErrReauthFailed means an interactive re-authentication during conflict
// resolution did not produce an assertion.
var ErrReauthFailed = errors.New("re-authentication failed")

const defaultFlowTimeout = 5 * time.Minute

// Options wires a Broker.
type Options struct {
	Providers *provider.Registry
	Callback  *CallbackServer

	IdentityBaseURL string
	IdentityAPIKey  string

	Open   Opener
	Prompt CredentialPrompter

	// FlowTimeout bounds how long an interactive flow may sit waiting for
	// the redirect. Zero means the default of five minutes.
	FlowTimeout time.Duration
}

type Broker struct {
	providers *provider.Registry
	cb        *CallbackServer
	idp       *idpClient

	open        Opener
	prompt      CredentialPrompter
	flowTimeout time.Duration

	// One interactive flow at a time: stacking browser windows is not
	// acceptable UX.
	flowMu sync.Mutex

	log *zap.Logger
}

func New(opts Options) (*Broker, error) {
	if opts.Providers == nil || opts.Callback == nil {
		return nil, errors.New("broker: providers and callback server are required")
	}
	if opts.IdentityBaseURL == "" {
		return nil, errors.New("broker: identity service URL is required")
	}

	timeout := opts.FlowTimeout
	if timeout <= 0 {
		timeout = defaultFlowTimeout
	}

	open := opts.Open
	if open == nil {
		open = func(string) error { return errors.New("broker: no browser opener configured") }
	}

	return &Broker{
		providers:   opts.Providers,
		cb:          opts.Callback,
		idp:         newIDPClient(opts.IdentityBaseURL, opts.IdentityAPIKey),
		open:        open,
		prompt:      opts.Prompt,
		flowTimeout: timeout,
		log:         logger.Named("broker"),
	}, nil
}

// SignIn runs the full interactive sign-in for a federated provider and
// exchanges the resulting credential at the identity service. Every
// outcome is expressed through the closed SignInResult set.
func (b *Broker) SignIn(ctx context.Context, kind auth.ProviderKind) SignInResult {
	cred, failed := b.interactiveCredential(ctx, kind)
	if failed != nil {
		return *failed
	}

	resp, err := b.idp.signInWithIdp(ctx, cred, "", "")
	if err != nil {
		if isIDPCode(err, idpCodeEmailExists) {
			// The service rejected outright without a pending token:
			// nothing to link, surface as a failure.
			return otherFailure("email already registered under a different provider")
		}
		if isNetworkErr(err) {
			return networkFailure(err)
		}
		return otherFailure(err.Error())
	}

	if resp.NeedConfirmation {
		b.log.Info("account conflict reported by identity service",
			zap.String("provider", string(kind)),
			zap.String("email", resp.Email),
		)
		return conflict(resp.Email, &auth.PendingCredential{
			Provider: kind,
			Token:    resp.PendingToken,
		})
	}

	profile := cred.Profile
	if profile.AvatarURL == "" && resp.PhotoURL != "" {
		profile.AvatarURL = resp.PhotoURL
	}

	return success(resp.IDToken, &profile)
}

// SignInMethods asks the identity service which sign-in methods are
// already registered for an email. Unknown method names are dropped.
func (b *Broker) SignInMethods(ctx context.Context, email string) ([]auth.ProviderKind, error) {
	methods, err := b.idp.fetchSignInMethods(ctx, email)
	if err != nil {
		return nil, err
	}

	kinds := make([]auth.ProviderKind, 0, len(methods))
	for _, m := range methods {
		kind, err := auth.ParseProviderKind(m)
		if err != nil {
			b.log.Warn("identity service returned unknown sign-in method",
				zap.String("method", m))
			continue
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Reauthenticate signs the user in through an already-registered method
// and returns the assertion. The password method prompts for the secret;
// federated methods run the interactive flow.
func (b *Broker) Reauthenticate(ctx context.Context, kind auth.ProviderKind, email string) (string, error) {
	if kind == auth.ProviderPassword {
		if b.prompt == nil {
			return "", fmt.Errorf("%w: no credential prompter configured", ErrReauthFailed)
		}
		secret, err := b.prompt(ctx, email)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrReauthFailed, err)
		}
		resp, err := b.idp.signInWithPassword(ctx, email, secret)
		if err != nil {
			if isIDPCode(err, idpCodeInvalidPassword) || isIDPCode(err, idpCodeEmailNotFound) {
				return "", fmt.Errorf("%w: invalid credentials", ErrReauthFailed)
			}
			return "", fmt.Errorf("%w: %v", ErrReauthFailed, err)
		}
		return resp.IDToken, nil
	}

	cred, failed := b.interactiveCredential(ctx, kind)
	if failed != nil {
		return "", fmt.Errorf("%w: %s", ErrReauthFailed, failed.describe())
	}

	resp, err := b.idp.signInWithIdp(ctx, cred, "", "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReauthFailed, err)
	}
	if resp.NeedConfirmation {
		// A conflict during re-authentication cannot be resolved
		// recursively; treat it as a failed attempt.
		return "", fmt.Errorf("%w: conflicting account during re-authentication", ErrReauthFailed)
	}
	return resp.IDToken, nil
}

// Link attaches a pending credential to the identity behind assertion and
// returns the linked identity's fresh assertion.
func (b *Broker) Link(ctx context.Context, assertion string, pending *auth.PendingCredential) (string, error) {
	if pending == nil || pending.Token == "" {
		return "", errors.New("broker: no pending credential to link")
	}

	resp, err := b.idp.signInWithIdp(ctx, nil, assertion, pending.Token)
	if err != nil {
		return "", fmt.Errorf("broker: credential linking failed: %w", err)
	}
	return resp.IDToken, nil
}

// SignOut revokes the assertion at the identity service. Best-effort:
// local teardown proceeds regardless.
func (b *Broker) SignOut(ctx context.Context, assertion string) error {
	if assertion == "" {
		return nil
	}
	return b.idp.signOut(ctx, assertion)
}

// interactiveCredential drives one browser round-trip: state + PKCE,
// open the authorization URL, wait for the loopback redirect, exchange
// the code with the provider. A nil second return means success.
func (b *Broker) interactiveCredential(ctx context.Context, kind auth.ProviderKind) (*auth.ExternalCredential, *SignInResult) {
	if !kind.Federated() {
		r := otherFailure(fmt.Sprintf("provider %s is not federated", kind))
		return nil, &r
	}

	p, err := b.providers.Get(kind)
	if err != nil {
		r := otherFailure(err.Error())
		return nil, &r
	}

	b.flowMu.Lock()
	defer b.flowMu.Unlock()

	flowID := uuid.NewString()
	state := utils.RandomString(32)
	verifier, challenge := generatePKCE()

	authURL := p.AuthCodeURL(state, challenge)

	resultCh := b.cb.arm()
	defer b.cb.disarm()

	b.log.Info("opening provider sign-in",
		zap.String("flow_id", flowID),
		zap.String("provider", string(kind)),
	)

	if err := b.open(authURL); err != nil {
		r := otherFailure("failed to open browser: " + err.Error())
		return nil, &r
	}

	var res callbackResult
	select {
	case <-ctx.Done():
		r := cancelled()
		return nil, &r
	case <-time.After(b.flowTimeout):
		// The user closed the browser without completing the flow; the
		// redirect will never arrive.
		r := cancelled()
		return nil, &r
	case res = <-resultCh:
	}

	if res.ErrCode == "access_denied" {
		r := cancelled()
		return nil, &r
	}
	if res.ErrCode != "" {
		r := otherFailure(fmt.Sprintf("provider returned %s: %s", res.ErrCode, res.ErrDesc))
		return nil, &r
	}
	if res.State != state {
		r := otherFailure("state mismatch on provider redirect")
		return nil, &r
	}
	if res.Code == "" {
		r := otherFailure("provider redirect missing authorization code")
		return nil, &r
	}

	cred, err := p.ExchangeCode(ctx, res.Code, verifier)
	if err != nil {
		if isNetworkErr(err) {
			r := networkFailure(err)
			return nil, &r
		}
		r := otherFailure(err.Error())
		return nil, &r
	}

	return cred, nil
}

// describe renders a failure result for wrapping into an error.
func (r SignInResult) describe() string {
	switch r.Kind {
	case KindUserCancelled:
		return "cancelled by user"
	case KindNetworkFailure:
		return "network failure: " + r.Message
	default:
		return r.Message
	}
}

func isNetworkErr(err error) bool {
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
