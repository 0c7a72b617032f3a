// Package devicebind persists the device identity and its branch binding on
// local disk. The binding survives restarts; only the admin unlock path may
// reset it.
package devicebind

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var ErrStorageUnavailable = errors.New("device binding storage unavailable")

const fileName = "device.json"

type state struct {
	DeviceID      string `json:"device_id"`
	BoundBranchID string `json:"bound_branch_id"`
	Locked        bool   `json:"locked"`
	Registered    bool   `json:"registered"`
}

type Store struct {
	path string
	st   state
}

// Open loads the binding file, creating an empty one on first run.
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
	if err := json.Unmarshal(raw, &s.st); err != nil {
		return nil, fmt.Errorf("%w: corrupt binding file: %v", ErrStorageUnavailable, err)
	}
	return s, nil
}

// DeviceID returns the stable device identifier, generating and persisting
// one on first call.
func (s *Store) DeviceID() (string, error) {
	if s.st.DeviceID != "" {
		return s.st.DeviceID, nil
	}
	s.st.DeviceID = uuid.NewString()
	if err := s.save(); err != nil {
		s.st.DeviceID = ""
		return "", err
	}
	return s.st.DeviceID, nil
}

func (s *Store) BoundBranch() string { return s.st.BoundBranchID }

func (s *Store) SetBoundBranch(branchID string) error {
	prev := s.st.BoundBranchID
	s.st.BoundBranchID = branchID
	if err := s.save(); err != nil {
		s.st.BoundBranchID = prev
		return err
	}
	return nil
}

func (s *Store) Locked() bool     { return s.st.Locked }
func (s *Store) Registered() bool { return s.st.Registered }

func (s *Store) Lock() error   { return s.setFlags(true, s.st.Registered) }
func (s *Store) Unlock() error { return s.setFlags(false, s.st.Registered) }

func (s *Store) SetRegistered(v bool) error { return s.setFlags(s.st.Locked, v) }

// Clear wipes the binding (branch, lock, registration) but keeps the device
// identity.
func (s *Store) Clear() error {
	prev := s.st
	s.st.BoundBranchID = ""
	s.st.Locked = false
	s.st.Registered = false
	if err := s.save(); err != nil {
		s.st = prev
		return err
	}
	return nil
}

func (s *Store) setFlags(locked, registered bool) error {
	prev := s.st
	s.st.Locked = locked
	s.st.Registered = registered
	if err := s.save(); err != nil {
		s.st = prev
		return err
	}
	return nil
}

func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
