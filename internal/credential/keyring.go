// Package credential keeps the client's bearer token in the system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"taskeer/internal/config"
)

// ErrNoToken is returned when nothing is stored for the account.
var ErrNoToken = errors.New("no stored token")

type Store struct {
	ring keyring.Keyring
}

// Open returns a store backed by the first keyring backend available on
// this machine, falling back to an encrypted file under cfg.FileDir.
func Open(cfg config.KeyringSettings) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: cfg.Service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.Service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func tokenKey(email string) string {
	return "token:" + email
}

// Token returns the token saved for email.
func (s *Store) Token(email string) (string, error) {
	item, err := s.ring.Get(tokenKey(email))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting token for %q: %w", email, err)
	}
	if len(item.Data) == 0 {
		return "", ErrNoToken
	}
	return string(item.Data), nil
}

func (s *Store) SaveToken(email, token string) error {
	err := s.ring.Set(keyring.Item{
		Key:   tokenKey(email),
		Data:  []byte(token),
		Label: "taskeer session for " + email,
	})
	if err != nil {
		return fmt.Errorf("setting token for %q: %w", email, err)
	}
	return nil
}

// Forget removes the token for email. A missing token is not an error.
func (s *Store) Forget(email string) error {
	err := s.ring.Remove(tokenKey(email))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token for %q: %w", email, err)
	}
	return nil
}
