package secrets

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "pixiedl"
	keyringPrefix  = "gallery:"
)

// KeyringStore keeps gallery passwords in the system keychain
type KeyringStore struct{}

// NewKeyringStore returns a keychain store, or an error when no keychain
// service is reachable
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "availability-check"
	if err := keyring.Set(keyringService, testKey, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(cred *Credential) error {
	if cred == nil || cred.Gallery == "" {
		return ErrInvalid
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := keyring.Set(keyringService, keyringPrefix+cred.Gallery, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Retrieve(gallery string) (*Credential, error) {
	if gallery == "" {
		return nil, ErrInvalid
	}

	data, err := keyring.Get(keyringService, keyringPrefix+gallery)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// List is empty: go-keyring cannot enumerate entries
func (k *KeyringStore) List() ([]*Credential, error) {
	return []*Credential{}, nil
}

func (k *KeyringStore) Delete(gallery string) error {
	if gallery == "" {
		return ErrInvalid
	}

	if err := keyring.Delete(keyringService, keyringPrefix+gallery); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
