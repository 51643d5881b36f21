// Package session carries the signed-in user through the client side.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSession is returned when no session has been saved.
var ErrNoSession = errors.New("not logged in")

// Session identifies the signed-in user. Controllers receive one at
// construction.
type Session struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// New returns a session for username authenticated by token.
func New(username, token string) (*Session, error) {
	s := &Session{Username: strings.TrimSpace(username), Token: strings.TrimSpace(token)}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports whether both fields are set.
func (s *Session) Validate() error {
	if s == nil || s.Username == "" {
		return fmt.Errorf("session has no username")
	}
	if s.Token == "" {
		return fmt.Errorf("session has no token")
	}
	return nil
}

// DefaultPath returns the file assetctl keeps its session in.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, "assetflow", "session.json"), nil
}

// Load reads a session saved with Save.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// Save writes the session to path, readable by the owner only.
func (s *Session) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Remove deletes a saved session. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}
