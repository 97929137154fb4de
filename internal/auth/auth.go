package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoSession is returned by Load when nobody is logged in.
var ErrNoSession = errors.New("not logged in")

// Identity is the logged-in user.
type Identity struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	LoggedInAt time.Time `json:"logged_in_at,omitzero"`
}

// NewIdentity validates and normalizes a login.
func NewIdentity(email, name string) (Identity, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" {
		return Identity{}, fmt.Errorf("email and name are required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid email %q: %w", email, err)
	}
	return Identity{Email: strings.ToLower(addr.Address), Name: name}, nil
}

type Store interface {
	Load() (Identity, error)
	Save(id Identity) error
	Clear() error
}

// FileStore keeps the identity in a JSON file readable only by its owner.
type FileStore struct {
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: strings.TrimSpace(path), now: time.Now}
}

// DefaultPath is meridian/session.json under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "meridian", "session.json"), nil
}

func (s *FileStore) Load() (Identity, error) {
	if s.path == "" {
		return Identity{}, fmt.Errorf("session path is required")
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Identity{}, ErrNoSession
		}
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, fmt.Errorf("decode session %s: %w", s.path, err)
	}
	if id.Email == "" {
		return Identity{}, ErrNoSession
	}
	return id, nil
}

func (s *FileStore) Save(id Identity) error {
	if s.path == "" {
		return fmt.Errorf("session path is required")
	}
	if id.LoggedInAt.IsZero() {
		id.LoggedInAt = s.now().UTC()
	}
	raw, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Clear logs out. Clearing an absent session is not an error.
func (s *FileStore) Clear() error {
	if s.path == "" {
		return fmt.Errorf("session path is required")
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
