package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService   = "com.appsaludable.client"
	keyringTokenKey  = "access_token"
	keyringAvatarKey = "avatar_hint"
)

// KeyringStore keeps the token in the OS keychain instead of a plain file.
// Selected with STORAGE_BACKEND=keyring.
type KeyringStore struct {
	service string
}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: keyringService}
}

func (k *KeyringStore) Token() (string, bool) {
	v, err := keyring.Get(k.service, keyringTokenKey)
	if err != nil {
		return "", false
	}
	return v, v != ""
}

func (k *KeyringStore) SetToken(token string) error {
	if err := keyring.Set(k.service, keyringTokenKey, token); err != nil {
		return fmt.Errorf("session: failed to store token in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Clear() error {
	for _, key := range []string{keyringTokenKey, keyringAvatarKey} {
		if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("session: failed to clear keyring key %s: %w", key, err)
		}
	}
	return nil
}

func (k *KeyringStore) AvatarHint() (string, bool) {
	v, err := keyring.Get(k.service, keyringAvatarKey)
	if err != nil {
		return "", false
	}
	return v, v != ""
}

func (k *KeyringStore) SetAvatarHint(url string) error {
	if err := keyring.Set(k.service, keyringAvatarKey, url); err != nil {
		return fmt.Errorf("session: failed to store avatar hint in keyring: %w", err)
	}
	return nil
}
