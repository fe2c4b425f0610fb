package session

import (
	"context"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/phol232/AppSaludable-sub000/internal/api"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
)

// ErrTokenInvalid means the stored token is unusable: the profile fetch
// failed and the token payload could not be decoded either. Callers must
// treat the session as invalid.
var ErrTokenInvalid = errors.New("session token is invalid")

// ProfileFetcher is the backend profile call the hydrator depends on.
type ProfileFetcher interface {
	Profile(ctx context.Context) (*api.UserProfile, error)
}

const profileCacheTTL = 30 * time.Second

// Hydrator turns a stored token into an authenticated user.
//
// Two-tier contract: the backend profile is authoritative; if it cannot
// be fetched but the token still decodes, a degraded user is produced
// from the subject claim so a transient backend outage does not log the
// user out. Only when both tiers fail is the session invalid.
type Hydrator struct {
	store   TokenStore
	backend ProfileFetcher
	cache   *gocache.Cache
	log     *zap.Logger
}

func NewHydrator(store TokenStore, backend ProfileFetcher) *Hydrator {
	return &Hydrator{
		store:   store,
		backend: backend,
		cache:   gocache.New(profileCacheTTL, time.Minute),
		log:     logger.Named("hydrator"),
	}
}

// Hydrate returns the current user, a degraded user, or nothing.
// (nil, nil) means no token is stored. (nil, ErrTokenInvalid) means a
// token exists but is unusable.
func (h *Hydrator) Hydrate(ctx context.Context) (*User, error) {
	token, ok := h.store.Token()
	if !ok {
		return nil, nil
	}

	if cached, found := h.cache.Get(token); found {
		u := *(cached.(*User))
		return &u, nil
	}

	profile, err := h.backend.Profile(ctx)
	if err == nil {
		avatar := profile.AvatarURL
		if avatar != "" {
			// Fresh value wins and refreshes the hint cache.
			if herr := h.store.SetAvatarHint(avatar); herr != nil {
				h.log.Warn("failed to cache avatar hint", zap.Error(herr))
			}
		} else if hint, has := h.store.AvatarHint(); has {
			avatar = hint
		}

		user := userFromProfile(profile, avatar)
		h.cache.Set(token, user, gocache.DefaultExpiration)
		return user, nil
	}

	h.log.Warn("profile fetch failed, falling back to token decode", zap.Error(err))

	// Degraded tier: decode the token payload without verifying the
	// signature. Validity is the backend's business; structure is ours.
	subject, derr := decodeSubject(token)
	if derr != nil {
		return nil, ErrTokenInvalid
	}

	user := &User{
		Username: subject,
		Degraded: true,
	}
	if hint, has := h.store.AvatarHint(); has {
		user.AvatarURL = hint
	}
	// Degraded users are not cached: the next hydrate should retry the
	// backend.
	return user, nil
}

// Invalidate drops cached profiles. Called on logout and teardown.
func (h *Hydrator) Invalidate() {
	h.cache.Flush()
}

func decodeSubject(token string) (string, error) {
	parser := jwtv5.NewParser()

	parsed, _, err := parser.ParseUnverified(token, jwtv5.MapClaims{})
	if err != nil {
		return "", err
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject claim")
	}
	return subject, nil
}
