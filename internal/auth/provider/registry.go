package provider

import (
	"fmt"

	"github.com/phol232/AppSaludable-sub000/internal/auth"
)

// Registry holds all configured OAuth providers and allows
// lookup by provider kind. It performs no auth logic itself.
type Registry struct {
	providers map[auth.ProviderKind]OAuthProvider
}

// NewRegistry registers the given OAuth providers by kind.
// Provider kinds must be unique.
func NewRegistry(list ...OAuthProvider) *Registry {
	m := make(map[auth.ProviderKind]OAuthProvider)
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the OAuth provider by kind or an error if not registered.
func (r *Registry) Get(kind auth.ProviderKind) (OAuthProvider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown oauth provider: %s", kind)
	}
	return p, nil
}

// Kinds returns the registered provider kinds.
func (r *Registry) Kinds() []auth.ProviderKind {
	out := make([]auth.ProviderKind, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	return out
}
