package secrets

import (
	"os"
	"time"
)

// PasswordEnv holds a password applied to whichever gallery is requested
const PasswordEnv = "PIXIEDL_GALLERY_PASSWORD"

// EnvironmentStore reads a single password from the environment. It is
// read-only.
type EnvironmentStore struct {
	lookup func(string) string
}

// NewEnvironmentStore creates a store over the process environment
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{lookup: os.Getenv}
}

func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(gallery string) (*Credential, error) {
	password := e.lookup(PasswordEnv)
	if password == "" {
		return nil, ErrNotFound
	}
	return &Credential{
		Gallery:      gallery,
		Password:     password,
		LastModified: time.Now(),
	}, nil
}

// List reports nothing; the password is not tied to a gallery
func (e *EnvironmentStore) List() ([]*Credential, error) {
	return []*Credential{}, nil
}

func (e *EnvironmentStore) Delete(gallery string) error {
	return ErrStoreUnavailable
}
