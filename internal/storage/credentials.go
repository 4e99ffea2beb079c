package storage

import (
	"fmt"
	"os"

	"github.com/observerhq/observer/internal/crypto"
)

// Credentials is the token pair issued by the server on login.
type Credentials struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
	Username     string `json:"username,omitempty"`
	Role         string `json:"role,omitempty"`
}

// CredentialStore seals credentials at rest under a locally generated key.
type CredentialStore struct {
	path   string
	secret [32]byte
}

// NewCredentialStore opens (or initializes) a credential store. keyPath holds
// the sealing key, path the sealed credential file.
func NewCredentialStore(path, keyPath string) (*CredentialStore, error) {
	key, err := GetOrCreateSecretKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load sealing key: %w", err)
	}
	s := &CredentialStore{path: path}
	copy(s.secret[:], key)
	return s, nil
}

// Save seals and writes the credential pair.
func (s *CredentialStore) Save(creds Credentials) error {
	sealed, err := crypto.Seal(creds, &s.secret)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}
	if err := os.WriteFile(s.path, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Load reads and unseals the credential pair.
func (s *CredentialStore) Load() (Credentials, error) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	var creds Credentials
	if err := crypto.Open(sealed, &s.secret, &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to unseal credentials: %w", err)
	}
	return creds, nil
}

// Clear removes the stored credential pair. Missing files are not an error.
func (s *CredentialStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
