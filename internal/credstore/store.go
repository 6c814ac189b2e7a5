// SPDX-License-Identifier: AGPL-3.0-only
package credstore

import (
	"errors"
	"sync"
)

const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

var ErrNotFound = errors.New("credential not found")

// Reader is the read side of a credential store. Implementations must be
// safe for concurrent use.
type Reader interface {
	Get(key string) (string, error)
}

// Store keeps opaque secrets by key. Get returns ErrNotFound for a key that
// was never set or has been deleted. Delete of a missing key is not an error.
type Store interface {
	Reader
	Set(key, secret string) error
	Delete(key string) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]string),
	}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (s *MemoryStore) Set(key, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets[key] = secret
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, key)
	return nil
}
