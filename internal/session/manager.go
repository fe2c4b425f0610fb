package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/phol232/AppSaludable-sub000/internal/api"
	"github.com/phol232/AppSaludable-sub000/internal/auth"
	"github.com/phol232/AppSaludable-sub000/internal/auth/broker"
	"github.com/phol232/AppSaludable-sub000/internal/auth/resolver"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
)

// State is the session's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session handed to observers.
type Snapshot struct {
	State State
	User  *User
	Err   error
}

var (
	// ErrOperationInFlight means another sign-in/sign-out operation holds
	// the single in-flight slot. The UI should disable controls while
	// Loading; this guard backs that up across every entry point.
	ErrOperationInFlight = errors.New("another session operation is in flight")

	// ErrSignInCancelled means the user abandoned the provider
	// interaction. The session returns to its pre-attempt state and no
	// error banner should be shown.
	ErrSignInCancelled = errors.New("sign-in cancelled")

	// ErrNetwork is a connectivity failure talking to the backend or the
	// identity service.
	ErrNetwork = errors.New("could not reach the authentication service")
)

// BackendClient is the token-exchange surface the manager consumes.
// *api.Client satisfies it.
type BackendClient interface {
	LoginPassword(ctx context.Context, identifier, secret string) (string, error)
	LoginFederated(ctx context.Context, assertion string) (string, error)
	Register(ctx context.Context, req api.RegisterRequest) (string, error)
	Profile(ctx context.Context) (*api.UserProfile, error)
	Logout(ctx context.Context) error
	ChangeRole(ctx context.Context, userID int, roleCode string) (*api.UserProfile, error)
}

// IdentityBroker is the federated sign-in surface the manager consumes.
// *broker.Broker satisfies it.
type IdentityBroker interface {
	SignIn(ctx context.Context, kind auth.ProviderKind) broker.SignInResult
	SignOut(ctx context.Context, assertion string) error
}

// Manager owns "is the user logged in". It is the only component the rest
// of the application depends on: it composes the token store, the backend
// client, the identity broker and the conflict resolver, serializes state
// transitions, and publishes snapshots to observers.
type Manager struct {
	store    TokenStore
	backend  BackendClient
	broker   IdentityBroker
	resolver resolver.Resolver
	hydrator *Hydrator
	log      *zap.Logger

	mu        sync.Mutex
	state     State
	user      *User
	lastErr   error
	assertion string // last identity-service assertion, for external sign-out
	inFlight  bool
	gen       uint64 // bumped by forced teardown; stale operations must not resurrect the session

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

func NewManager(
	store TokenStore,
	backend BackendClient,
	identityBroker IdentityBroker,
	conflictResolver resolver.Resolver,
) *Manager {
	return &Manager{
		store:     store,
		backend:   backend,
		broker:    identityBroker,
		resolver:  conflictResolver,
		hydrator:  NewHydrator(store, backend),
		log:       logger.Named("session"),
		state:     StateIdle,
		observers: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers an observer and returns its unsubscribe function.
// The observer immediately receives the current snapshot.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	fn(m.Snapshot())

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, User: m.user, Err: m.lastErr}
}

func (m *Manager) notify() {
	snap := m.Snapshot()

	m.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// beginOp claims the single in-flight slot and moves to Loading.
// It returns the pre-attempt snapshot for restoration on cancel.
func (m *Manager) beginOp() (Snapshot, uint64, error) {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return Snapshot{}, 0, ErrOperationInFlight
	}
	m.inFlight = true
	prev := Snapshot{State: m.state, User: m.user, Err: m.lastErr}
	gen := m.gen
	m.state = StateLoading
	m.lastErr = nil
	m.mu.Unlock()

	m.notify()
	return prev, gen, nil
}

// endOp releases the slot and settles the final state. If a forced
// teardown interleaved with the operation, the teardown wins: the session
// is not resurrected from a stale success.
func (m *Manager) endOp(gen uint64, state State, user *User, err error) {
	m.mu.Lock()
	m.inFlight = false
	if m.gen != gen && state == StateAuthenticated {
		m.log.Warn("discarding sign-in result: session was torn down mid-operation")
		_ = m.store.Clear()
		state, user, err = StateUnauthenticated, nil, nil
	}
	m.state = state
	m.user = user
	m.lastErr = err
	m.mu.Unlock()

	m.notify()
}

// restore releases the slot and puts the pre-attempt snapshot back.
func (m *Manager) restore(prev Snapshot) {
	m.mu.Lock()
	m.inFlight = false
	m.state = prev.State
	m.user = prev.User
	m.lastErr = prev.Err
	m.mu.Unlock()

	m.notify()
}

// Bootstrap hydrates the session from stored state at app start.
func (m *Manager) Bootstrap(ctx context.Context) error {
	_, gen, err := m.beginOp()
	if err != nil {
		return err
	}

	user, herr := m.hydrator.Hydrate(ctx)
	if user != nil {
		m.endOp(gen, StateAuthenticated, user, nil)
		return nil
	}

	if errors.Is(herr, ErrTokenInvalid) {
		m.log.Warn("stored token is invalid, clearing session")
		_ = m.store.Clear()
	}
	m.endOp(gen, StateUnauthenticated, nil, nil)
	return nil
}

// SignInPassword authenticates with an identifier/secret pair against the
// backend.
func (m *Manager) SignInPassword(ctx context.Context, identifier, secret string) error {
	_, gen, err := m.beginOp()
	if err != nil {
		return err
	}

	token, err := m.backend.LoginPassword(ctx, identifier, secret)
	if err != nil {
		err = normalizeErr(err)
		m.endOp(gen, StateUnauthenticated, nil, err)
		return err
	}

	return m.settleToken(ctx, gen, token)
}

// SignInProvider authenticates through a federated provider. Account
// conflicts are resolved before giving up; a cancelled interaction
// restores the pre-attempt state.
func (m *Manager) SignInProvider(ctx context.Context, kind auth.ProviderKind) error {
	prev, gen, err := m.beginOp()
	if err != nil {
		return err
	}

	res := m.broker.SignIn(ctx, kind)

	switch res.Kind {
	case broker.KindSuccess:
		if res.Profile != nil && res.Profile.AvatarURL != "" {
			if herr := m.store.SetAvatarHint(res.Profile.AvatarURL); herr != nil {
				m.log.Warn("failed to cache avatar hint", zap.Error(herr))
			}
		}
		m.setAssertion(res.Assertion)

		token, err := m.backend.LoginFederated(ctx, res.Assertion)
		if err != nil {
			err = normalizeErr(err)
			m.endOp(gen, StateUnauthenticated, nil, err)
			return err
		}
		return m.settleToken(ctx, gen, token)

	case broker.KindUserCancelled:
		m.log.Info("provider sign-in cancelled by user", zap.String("provider", string(kind)))
		m.restore(prev)
		return ErrSignInCancelled

	case broker.KindNetworkFailure:
		m.endOp(gen, StateUnauthenticated, nil, ErrNetwork)
		return ErrNetwork

	case broker.KindAccountConflict:
		token, assertion, rerr := m.resolver.Resolve(ctx, res.Email, res.Pending)
		if rerr != nil {
			m.endOp(gen, StateUnauthenticated, nil, rerr)
			return rerr
		}
		// The linked assertion is the session's external identity now;
		// Logout signs it out like any other.
		m.setAssertion(assertion)
		return m.settleToken(ctx, gen, token)

	default:
		err := errors.New(res.Message)
		m.endOp(gen, StateUnauthenticated, nil, err)
		return err
	}
}

// Register creates an account and signs it in. The optional role
// assignment runs after the account exists; its failure does not revert
// the account and the session stays authenticated with the default role.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) error {
	_, gen, err := m.beginOp()
	if err != nil {
		return err
	}

	token, err := m.backend.Register(ctx, req)
	if err != nil {
		err = normalizeErr(err)
		m.endOp(gen, StateUnauthenticated, nil, err)
		return err
	}

	if err := m.store.SetToken(token); err != nil {
		m.endOp(gen, StateUnauthenticated, nil, err)
		return err
	}

	user, herr := m.hydrator.Hydrate(ctx)
	if user == nil {
		_ = m.store.Clear()
		if herr == nil {
			herr = ErrTokenInvalid
		}
		m.endOp(gen, StateUnauthenticated, nil, herr)
		return herr
	}

	if req.RoleCode != "" && !user.Degraded {
		profile, rerr := m.backend.ChangeRole(ctx, user.ID, req.RoleCode)
		if rerr != nil {
			m.log.Warn("post-registration role assignment failed, keeping default role",
				zap.String("role_code", req.RoleCode),
				zap.Error(rerr),
			)
		} else {
			user = userFromProfile(profile, user.AvatarURL)
			m.hydrator.Invalidate()
		}
	}

	m.endOp(gen, StateAuthenticated, user, nil)
	return nil
}

// ChangeRole updates a user's role through the backend. When the target is
// the signed-in user the session snapshot is refreshed from the returned
// profile; a failure leaves the session exactly as it was.
func (m *Manager) ChangeRole(ctx context.Context, userID int, roleCode string) (*api.UserProfile, error) {
	prev, gen, err := m.beginOp()
	if err != nil {
		return nil, err
	}

	profile, err := m.backend.ChangeRole(ctx, userID, roleCode)
	if err != nil {
		m.restore(prev)
		return nil, normalizeErr(err)
	}

	m.hydrator.Invalidate()

	user := prev.User
	if user != nil && user.ID == userID {
		user = userFromProfile(profile, user.AvatarURL)
	}
	m.endOp(gen, prev.State, user, nil)
	return profile, nil
}

// Logout tears the session down: best-effort backend logout, best-effort
// external sign-out, then the store is cleared unconditionally. The
// outcome is always Unauthenticated.
func (m *Manager) Logout(ctx context.Context) error {
	_, gen, err := m.beginOp()
	if err != nil {
		return err
	}

	if err := m.backend.Logout(ctx); err != nil {
		m.log.Warn("backend logout failed, clearing local session anyway", zap.Error(err))
	}
	if err := m.broker.SignOut(ctx, m.currentAssertion()); err != nil {
		m.log.Warn("external sign-out failed", zap.Error(err))
	}

	if err := m.store.Clear(); err != nil {
		m.log.Error("failed to clear session store", zap.Error(err))
	}
	m.hydrator.Invalidate()
	m.setAssertion("")

	m.endOp(gen, StateUnauthenticated, nil, nil)
	return nil
}

// HandleUnauthorized is the forced teardown path, raised by the
// unauthorized listener. It bypasses the in-flight guard: no matter what
// is running, the session is gone.
func (m *Manager) HandleUnauthorized() {
	m.mu.Lock()
	m.gen++
	_ = m.store.Clear()
	m.hydrator.Invalidate()
	m.assertion = ""
	m.state = StateUnauthenticated
	m.user = nil
	m.lastErr = nil
	m.mu.Unlock()

	m.notify()
}

// settleToken persists a fresh token and hydrates the user.
func (m *Manager) settleToken(ctx context.Context, gen uint64, token string) error {
	if err := m.store.SetToken(token); err != nil {
		m.endOp(gen, StateUnauthenticated, nil, err)
		return err
	}
	m.hydrator.Invalidate()

	user, herr := m.hydrator.Hydrate(ctx)
	if user == nil {
		_ = m.store.Clear()
		if herr == nil {
			herr = ErrTokenInvalid
		}
		m.endOp(gen, StateUnauthenticated, nil, herr)
		return herr
	}

	m.endOp(gen, StateAuthenticated, user, nil)
	return nil
}

func (m *Manager) setAssertion(a string) {
	m.mu.Lock()
	m.assertion = a
	m.mu.Unlock()
}

func (m *Manager) currentAssertion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assertion
}

// normalizeErr maps connectivity failures onto the session taxonomy so
// the UI shows one generic message for all of them.
func normalizeErr(err error) error {
	if api.IsNetwork(err) {
		return ErrNetwork
	}
	return err
}
