// Package gauth manages the single connected Google identity: token
// persistence, transparent refresh, and the connect/disconnect lifecycle.
package gauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ticketsync/internal/errors"
)

// Credentials is the persisted token set for the connected identity.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// Store persists one Credentials to a JSON file. It is the only writer of
// that file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted credentials. A missing or empty file yields nil
// without error.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("reading credential store: %w", err))
	}
	if len(data) == 0 {
		return nil, nil
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("parsing credential store: %w", err))
	}
	if creds.RefreshToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes the credentials with owner-only permissions.
func (s *Store) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.NewInternal(fmt.Errorf("creating credential directory: %w", err))
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.NewInternal(fmt.Errorf("writing credential store: %w", err))
	}
	return nil
}

// Erase removes the persisted credentials.
func (s *Store) Erase() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.NewInternal(fmt.Errorf("erasing credential store: %w", err))
	}
	return nil
}
