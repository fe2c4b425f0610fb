package app

import (
	"context"

	"github.com/phol232/AppSaludable-sub000/internal/auth/provider"
	"github.com/phol232/AppSaludable-sub000/internal/auth/provider/facebook"
	"github.com/phol232/AppSaludable-sub000/internal/auth/provider/github"
	"github.com/phol232/AppSaludable-sub000/internal/auth/provider/google"
	"github.com/phol232/AppSaludable-sub000/internal/auth/provider/microsoft"
	"github.com/phol232/AppSaludable-sub000/internal/config"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
)

// setupProviders registers every provider with a configured OAuth app.
// A provider with no client ID is simply absent; password-only setups
// end up with an empty registry, which is fine.
func setupProviders(ctx context.Context, cfg config.Config, redirectURL string) (*provider.Registry, error) {
	log := logger.Named("app")

	var list []provider.OAuthProvider

	if cfg.GoogleClientID != "" {
		p, err := google.New(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, redirectURL)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.GitHubClientID != "" {
		p, err := github.New(cfg.GitHubClientID, cfg.GitHubClientSecret, redirectURL)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.FacebookClientID != "" {
		p, err := facebook.New(cfg.FacebookClientID, cfg.FacebookClientSecret, redirectURL)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.MicrosoftClientID != "" {
		p, err := microsoft.New(ctx, cfg.MicrosoftIssuer, cfg.MicrosoftClientID, redirectURL)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	registry := provider.NewRegistry(list...)
	log.Info("federated providers registered")
	return registry, nil
}
