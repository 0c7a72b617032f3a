// Package credentials holds the device's current access token and identity
// snapshot, persisted next to the device binding.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var ErrStorageUnavailable = errors.New("credential storage unavailable")

const fileName = "token.json"

type Credentials struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	DeviceID  string `json:"device_id"`
	BranchID  string `json:"branch_id"`
	Role      string `json:"role"`
}

type Store struct {
	path  string
	creds Credentials
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s := &Store{path: filepath.Join(dir, fileName)}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := json.Unmarshal(raw, &s.creds); err != nil {
		// A corrupt token file is not fatal: the next refresh rewrites it.
		s.creds = Credentials{}
	}
	return s, nil
}

func (s *Store) Get() (Credentials, bool) {
	return s.creds, s.creds.Token != ""
}

func (s *Store) Set(c Credentials) error {
	prev := s.creds
	s.creds = c
	raw, err := json.MarshalIndent(s.creds, "", "  ")
	if err != nil {
		s.creds = prev
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		s.creds = prev
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) Clear() error {
	return s.Set(Credentials{})
}

func (s *Store) IsAuthenticated() bool {
	return s.creds.Token != "" && time.Now().Unix() < s.creds.ExpiresAt
}

func (s *Store) HasRole(role string) bool {
	return s.IsAuthenticated() && s.creds.Role == role
}
