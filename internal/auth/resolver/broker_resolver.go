package resolver

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
)

// Broker is the slice of the identity broker the resolver needs.
type Broker interface {
	SignInMethods(ctx context.Context, email string) ([]auth.ProviderKind, error)
	Reauthenticate(ctx context.Context, kind auth.ProviderKind, email string) (string, error)
	Link(ctx context.Context, assertion string, pending *auth.PendingCredential) (string, error)
}

// Exchanger is the backend exchange the resolver re-runs after linking.
type Exchanger interface {
	LoginFederated(ctx context.Context, assertion string) (string, error)
}

// BrokerResolver resolves conflicts through the identity broker.
// This is the canonical resolver.
type BrokerResolver struct {
	broker    Broker
	exchanger Exchanger
	log       *zap.Logger
}

func NewBrokerResolver(broker Broker, exchanger Exchanger) *BrokerResolver {
	return &BrokerResolver{
		broker:    broker,
		exchanger: exchanger,
		log:       logger.Named("resolver"),
	}
}

// Resolve runs the recovery protocol. The pending credential is scoped to
// this run: on return, success or not, it must not be reused.
//
// Only the first known method is attempted interactively. Each attempt
// opens a browser interaction and stacking them is not acceptable UX, so
// the run fails rather than fall through to a second method.
func (r *BrokerResolver) Resolve(
	ctx context.Context,
	email string,
	pending *auth.PendingCredential,
) (string, string, error) {

	runID := uuid.NewString()

	// 1. Discover which methods already own this email.
	methods, err := r.broker.SignInMethods(ctx, email)
	if err != nil {
		return "", "", &LinkFailedError{Reason: "could not look up existing sign-in methods"}
	}
	if len(methods) == 0 {
		return "", "", &LinkFailedError{Reason: "no sign-in methods registered for this email"}
	}

	// Logged in full so support can diagnose a surprising provider pick:
	// the user is never asked to choose.
	r.log.Info("resolving account conflict",
		zap.String("run_id", runID),
		zap.String("email", email),
		zap.String("attempted", string(pending.Provider)),
		zap.Any("known_methods", methods),
	)

	method := methods[0]

	// 2. Re-authenticate through the existing method.
	assertion, err := r.broker.Reauthenticate(ctx, method, email)
	if err != nil {
		r.log.Warn("re-authentication failed during conflict resolution",
			zap.String("run_id", runID),
			zap.String("method", string(method)),
			zap.Error(err),
		)
		return "", "", &LinkFailedError{Reason: "re-authentication via " + string(method) + " failed"}
	}

	// 3. Link the stranded credential to the re-authenticated identity.
	linked, err := r.broker.Link(ctx, assertion, pending)
	if err != nil {
		return "", "", &LinkFailedError{Reason: "could not link the new credential"}
	}

	// 4. Re-run the normal backend exchange with the linked assertion.
	token, err := r.exchanger.LoginFederated(ctx, linked)
	if err != nil {
		return "", "", &LinkFailedError{Reason: "token exchange after linking failed"}
	}

	r.log.Info("account conflict resolved",
		zap.String("run_id", runID),
		zap.String("method", string(method)),
	)

	return token, linked, nil
}
