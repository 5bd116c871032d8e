// Package session holds process-wide session state: the bearer
// credential, the resolved user identity, and persisted view
// preferences. State survives restarts via a JSON file and is torn
// down atomically on sign-out.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Prefs are view preferences persisted alongside the credential.
type Prefs struct {
	SortKey  string `json:"sortKey,omitempty"`
	SortDesc bool   `json:"sortDesc,omitempty"`
}

type state struct {
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	UserID       string `json:"userId,omitempty"`
	Prefs        Prefs  `json:"prefs,omitempty"`
}

// Store is the durable credential store. It is shared read-only by the
// identity resolver and every API call; only the login, registration,
// logout, and identity-resolution flows write to it. Readers must call
// the accessors again after any blocking operation instead of holding
// on to an earlier value.
type Store struct {
	path string // empty = in-memory only

	mu    sync.RWMutex
	state state
}

// Open loads the store from path, or starts empty if the file does not
// exist. An empty path keeps the store purely in memory.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse session state %s: %w", path, err)
	}
	return s, nil
}

// Token returns the current bearer token, or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// RefreshToken returns the current refresh token, or "".
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RefreshToken
}

// UserID returns the cached resolved user id, or "".
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserID
}

// Prefs returns the persisted view preferences.
func (s *Store) Prefs() Prefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Prefs
}

// SetTokens stores a fresh token pair. The cached user id is dropped:
// it belongs to the previous credential.
func (s *Store) SetTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Token = access
	s.state.RefreshToken = refresh
	s.state.UserID = ""
	return s.persistLocked()
}

// SetUserID caches the resolved user id.
func (s *Store) SetUserID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.UserID = id
	return s.persistLocked()
}

// SetPrefs persists view preferences.
func (s *Store) SetPrefs(p Prefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Prefs = p
	return s.persistLocked()
}

// Clear wipes the token, refresh token, and user id together and
// removes the state file. Preferences do not outlive the session.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state{}
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session state: %w", err)
	}
	return nil
}

// persistLocked writes the state file atomically (temp file + rename).
// Caller holds s.mu.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename session state: %w", err)
	}
	return nil
}
