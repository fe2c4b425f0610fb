package session

import (
	"go.uber.org/zap"

	"github.com/phol232/AppSaludable-sub000/internal/api"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
)

// Listener is the global unauthorized handler. It subscribes to the API
// client's 401 signal and forces the session down, no matter which flow
// issued the failing call.
type Listener struct {
	manager *Manager
	log     *zap.Logger
}

func NewListener(manager *Manager) *Listener {
	return &Listener{
		manager: manager,
		log:     logger.Named("unauthorized"),
	}
}

// Attach registers the listener with the API client.
func (l *Listener) Attach(client *api.Client) {
	client.OnUnauthorized(l.handle)
}

func (l *Listener) handle() {
	l.log.Warn("backend reported the session as unauthenticated, clearing it")
	l.manager.HandleUnauthorized()
}
