// SPDX-License-Identifier: AGPL-3.0-only
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16
	keySize  = 32
)

type sealedFile struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileStore persists secrets in a single file sealed with AES-GCM. The key is
// derived from a passphrase with scrypt; the salt lives next to the sealed data.
type FileStore struct {
	mu      sync.Mutex
	path    string
	salt    []byte
	key     []byte
	secrets map[string]string
}

// OpenFileStore opens the sealed file at path, creating an empty one when it
// does not exist yet. A wrong passphrase fails here, not on the first Get.
func OpenFileStore(path, passphrase string) (*FileStore, error) {
	if passphrase == "" {
		return nil, errors.New("credential store passphrase is empty")
	}

	s := &FileStore{
		path:    path,
		secrets: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		if s.key, err = deriveKey(passphrase, s.salt); err != nil {
			return nil, err
		}
		if err := s.flush(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential store: %w", err)
	}

	var sealed sealedFile
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return nil, fmt.Errorf("parse credential store: %w", err)
	}

	s.salt = sealed.Salt
	if s.key, err = deriveKey(passphrase, s.salt); err != nil {
		return nil, err
	}

	plaintext, err := decrypt(sealed.Ciphertext, sealed.Nonce, s.key)
	if err != nil {
		return nil, fmt.Errorf("unlock credential store: %w", err)
	}
	if err := json.Unmarshal(plaintext, &s.secrets); err != nil {
		return nil, fmt.Errorf("parse credential store secrets: %w", err)
	}

	return s, nil
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, ok := s.secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (s *FileStore) Set(key, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.secrets[key]
	s.secrets[key] = secret
	if err := s.flush(); err != nil {
		if had {
			s.secrets[key] = prev
		} else {
			delete(s.secrets, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.secrets[key]
	if !had {
		return nil
	}
	delete(s.secrets, key)
	if err := s.flush(); err != nil {
		s.secrets[key] = prev
		return err
	}
	return nil
}

// flush must be called with s.mu held.
func (s *FileStore) flush() error {
	plaintext, err := json.Marshal(s.secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	ciphertext, nonce, err := encrypt(plaintext, s.key)
	if err != nil {
		return fmt.Errorf("seal secrets: %w", err)
	}

	body, err := json.Marshal(sealedFile{
		Salt:       s.salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return fmt.Errorf("marshal credential store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential store dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return fmt.Errorf("write credential store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace credential store: %w", err)
	}

	return nil
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	if len(salt) != saltSize {
		return nil, fmt.Errorf("credential store salt must be %d bytes", saltSize)
	}
	key, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	if len(key) != keySize {
		return nil, nil, errors.New("encryption key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return
}

func decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("malformed nonce")
	}

	return gcm.Open(nil, nonce, ciphertext, nil)
}
