package app

import (
	"fmt"

	"github.com/phol232/AppSaludable-sub000/internal/config"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
	"github.com/phol232/AppSaludable-sub000/internal/redis"
	"github.com/phol232/AppSaludable-sub000/internal/session"
)

// setupStore selects the token storage backend. File is the default;
// keyring uses the OS keychain; redis serves shared or headless setups.
func setupStore(cfg config.Config) (session.TokenStore, error) {
	log := logger.Named("app")

	switch cfg.StorageBackend {
	case "", "file":
		store, err := session.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		log.Debug("using file token store")
		return store, nil

	case "keyring":
		log.Debug("using keyring token store")
		return session.NewKeyringStore(), nil

	case "redis":
		client, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("redis storage backend unavailable: %w", err)
		}
		log.Debug("using redis token store")
		return session.NewRedisStore(client.Client), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}
