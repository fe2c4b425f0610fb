package app

import (
	"context"

	"github.com/phol232/AppSaludable-sub000/internal/api"
	"github.com/phol232/AppSaludable-sub000/internal/auth/broker"
	"github.com/phol232/AppSaludable-sub000/internal/auth/resolver"
	"github.com/phol232/AppSaludable-sub000/internal/config"
	"github.com/phol232/AppSaludable-sub000/internal/session"
)

// App is the composed session client: everything the UI layer needs is
// reachable through Manager.
type App struct {
	Manager *session.Manager
	Client  *api.Client

	callback *broker.CallbackServer
}

// New wires the whole subsystem from config. The opener and prompter are
// UI concerns injected by the caller.
func New(
	ctx context.Context,
	cfg config.Config,
	open broker.Opener,
	prompt broker.CredentialPrompter,
) (*App, error) {

	// ----------------------------
	// Infrastructure
	// ----------------------------

	store, err := setupStore(cfg)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.BackendBaseURL, store)

	// The callback server binds first so providers get a stable
	// redirect URL even with a dynamic port.
	cb, err := broker.NewCallbackServer(cfg.CallbackHost, cfg.CallbackPort)
	if err != nil {
		return nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	registry, err := setupProviders(ctx, cfg, cb.URL())
	if err != nil {
		return nil, err
	}

	identityBroker, err := broker.New(broker.Options{
		Providers:       registry,
		Callback:        cb,
		IdentityBaseURL: cfg.IdentityBaseURL,
		IdentityAPIKey:  cfg.IdentityAPIKey,
		Open:            open,
		Prompt:          prompt,
	})
	if err != nil {
		return nil, err
	}

	conflictResolver := resolver.NewBrokerResolver(identityBroker, client)

	manager := session.NewManager(store, client, identityBroker, conflictResolver)

	// Any 401 anywhere tears the session down.
	session.NewListener(manager).Attach(client)

	return &App{
		Manager:  manager,
		Client:   client,
		callback: cb,
	}, nil
}

// Shutdown stops the callback server.
func (a *App) Shutdown(ctx context.Context) error {
	return a.callback.Close(ctx)
}
