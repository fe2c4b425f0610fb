package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the token and avatar hint as a JSON file so the
// session survives restarts. It is the default storage backend.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileState struct {
	AccessToken string `json:"access_token,omitempty"`
	AvatarHint  string `json:"avatar_hint,omitempty"`
}

// NewFileStore creates a FileStore at path. An empty path places the file
// under the user config dir.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("session: cannot locate user config dir: %w", err)
		}
		path = filepath.Join(dir, "appsaludable", "session.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("session: cannot create storage dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) load() fileState {
	var st fileState
	data, err := os.ReadFile(f.path)
	if err != nil {
		return st
	}
	// A corrupt file is treated as empty; the next write repairs it.
	_ = json.Unmarshal(data, &st)
	return st
}

func (f *FileStore) save(st fileState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: failed to marshal state: %w", err)
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileStore) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.load()
	return st.AccessToken, st.AccessToken != ""
}

func (f *FileStore) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.load()
	st.AccessToken = token
	return f.save(st)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileStore) AvatarHint() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.load()
	return st.AvatarHint, st.AvatarHint != ""
}

func (f *FileStore) SetAvatarHint(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.load()
	st.AvatarHint = url
	return f.save(st)
}
