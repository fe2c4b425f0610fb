package session

import "sync"

// TokenStore holds the current bearer token and a cached avatar hint.
// It is a dumb, synchronous cache: no validation happens here, and no
// other component touches the underlying storage directly.
//
// The avatar hint is a display hint only, never an identity signal. Both
// values are cleared together on logout and on the unauthorized signal.
type TokenStore interface {
	Token() (string, bool)
	SetToken(token string) error
	Clear() error

	AvatarHint() (string, bool)
	SetAvatarHint(url string) error
}

// MemoryStore is an in-process TokenStore for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.Mutex
	token  string
	avatar string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.avatar = ""
	return nil
}

func (m *MemoryStore) AvatarHint() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avatar, m.avatar != ""
}

func (m *MemoryStore) SetAvatarHint(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avatar = url
	return nil
}
