package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Credential is the password of one protected gallery
type Credential struct {
	Gallery      string    `json:"gallery"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// Store persists gallery passwords keyed by Key(gallery)
type Store interface {
	// Store saves the password for cred.Gallery
	Store(cred *Credential) error

	// Retrieve gets the password for a gallery
	Retrieve(gallery string) (*Credential, error)

	// List returns every stored credential the backend can enumerate
	List() ([]*Credential, error)

	// Delete removes the password for a gallery
	Delete(gallery string) error
}

// Errors
var (
	ErrNotFound         = errors.New("gallery password not found")
	ErrInvalid          = errors.New("gallery and password are required")
	ErrStoreUnavailable = errors.New("password store unavailable")
)

// Manager reads and writes gallery passwords through a chain of stores
type Manager struct {
	stores []Store
}

// NewManager builds the default chain: system keychain when available, then
// an encrypted file in the config directory, then the environment.
func NewManager() (*Manager, error) {
	var stores []Store

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "passwords.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over explicit stores, in lookup order
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Store saves the password in the first store that accepts it
func (m *Manager) Store(gallery, password string) error {
	if gallery == "" || password == "" {
		return ErrInvalid
	}

	cred := &Credential{
		Gallery:      Key(gallery),
		Password:     password,
		LastModified: time.Now(),
	}

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store gallery password: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Password returns the stored password for a gallery, if any
func (m *Manager) Password(gallery string) (string, bool) {
	key := Key(gallery)
	for _, store := range m.stores {
		if cred, err := store.Retrieve(key); err == nil && cred != nil && cred.Password != "" {
			return cred.Password, true
		}
	}
	return "", false
}

// List returns the credentials of every store, newest version per gallery
func (m *Manager) List() ([]*Credential, error) {
	byGallery := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			if existing, ok := byGallery[cred.Gallery]; !ok || cred.LastModified.After(existing.LastModified) {
				byGallery[cred.Gallery] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(byGallery))
	for _, cred := range byGallery {
		result = append(result, cred)
	}
	return result, nil
}

// Delete removes the password from every store holding it
func (m *Manager) Delete(gallery string) error {
	key := Key(gallery)
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete(key)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete gallery password: %w", lastErr)
	}
	return fmt.Errorf("%w for %s", ErrNotFound, key)
}

// Key normalizes a gallery URL so trivially different spellings share a
// password: scheme and host are lowercased, query, fragment and trailing
// slashes are dropped.
func Key(gallery string) string {
	gallery = strings.TrimSpace(gallery)
	u, err := url.Parse(gallery)
	if err != nil || u.Host == "" {
		return strings.TrimRight(gallery, "/")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}

// Mask hides all but the first and last characters of a password
func Mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:1] + strings.Repeat("*", len(s)-2) + s[len(s)-1:]
}

// ConfigDir returns the per-user pixiedl directory, creating it if needed
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "pixiedl")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "pixiedl")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "pixiedl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "pixiedl")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}
