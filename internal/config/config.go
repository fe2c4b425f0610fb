package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the session client needs: the AppSaludable
// backend, the identity service, the OAuth apps of each federated
// provider, and the local token storage backend.
type Config struct {
	// Logging
	LogEnv   string `env:"LOG_ENV"   envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// AppSaludable backend (token exchange, profile, roles)
	BackendBaseURL string `env:"BACKEND_BASE_URL,required"`

	// External identity service (assertion exchange, sign-in methods, linking)
	IdentityBaseURL string `env:"IDENTITY_BASE_URL,required"`
	IdentityAPIKey  string `env:"IDENTITY_API_KEY,required"`

	// Loopback callback server for interactive provider sign-in.
	// Port 0 picks a free port.
	CallbackHost string `env:"CALLBACK_HOST" envDefault:"127.0.0.1"`
	CallbackPort int    `env:"CALLBACK_PORT" envDefault:"0"`

	// Token storage backend: "file", "keyring" or "redis".
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"file"`
	StoragePath    string `env:"STORAGE_PATH"` // file backend; defaults under the user config dir

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Federated providers. A provider with an empty client ID is simply
	// not registered.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`

	FacebookClientID     string `env:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `env:"FACEBOOK_CLIENT_SECRET"`

	MicrosoftClientID string `env:"MICROSOFT_CLIENT_ID"`
	MicrosoftIssuer   string `env:"MICROSOFT_ISSUER" envDefault:"https://login.microsoftonline.com/common/v2.0"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse environment: %w", err)
	}
	return cfg, nil
}
