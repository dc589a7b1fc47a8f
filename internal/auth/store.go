// Package auth holds the bearer credential used by both the idle-path
// HTTP client and the PvP session. The store is passed explicitly to
// every component that needs it; nothing reads it from ambient state.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// Store is the credential boundary: an empty token means signed out.
type Store interface {
	Token() (string, error)
	SetToken(token string) error
	Clear() error
}

// FileStore keeps the token in a single file so it survives restarts.
// Writes go through renameio, so a crash never leaves a torn token.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Token() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) SetToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.Mutex
	token string
}

func NewMemStore(token string) *MemStore {
	return &MemStore{token: token}
}

func (s *MemStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemStore) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemStore) Clear() error {
	return s.SetToken("")
}
