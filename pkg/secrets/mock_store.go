package secrets

import "sync"

// MockStore is an in-memory Store for tests
type MockStore struct {
	creds map[string]Credential
	mu    sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	DeleteError   error
}

// NewMockStore creates an empty MockStore
func NewMockStore() *MockStore {
	return &MockStore{creds: make(map[string]Credential)}
}

func (m *MockStore) Store(cred *Credential) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if cred == nil || cred.Gallery == "" {
		return ErrInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.Gallery] = *cred
	return nil
}

func (m *MockStore) Retrieve(gallery string) (*Credential, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.creds[gallery]
	if !ok {
		return nil, ErrNotFound
	}
	return &cred, nil
}

func (m *MockStore) List() ([]*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Credential, 0, len(m.creds))
	for _, cred := range m.creds {
		cred := cred
		out = append(out, &cred)
	}
	return out, nil
}

func (m *MockStore) Delete(gallery string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[gallery]; !ok {
		return ErrNotFound
	}
	delete(m.creds, gallery)
	return nil
}

// Count returns the number of stored passwords
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.creds)
}

// NewMockManager creates a Manager over a single MockStore
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
