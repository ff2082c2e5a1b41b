package testutil

import (
	"context"
	"sync"

	ierr "github.com/flexprice/stripesync/internal/errors"
)

// InMemorySecretStore implements secretstore.Store in process memory.
type InMemorySecretStore struct {
	mu           sync.RWMutex
	values       map[string]string
	descriptions map[string]string

	// GetErr and PutErr, when set, are returned by every Get/Put call.
	// Used to simulate store outages, which must abort the run.
	GetErr error
	PutErr error
}

func NewInMemorySecretStore() *InMemorySecretStore {
	return &InMemorySecretStore{
		values:       make(map[string]string),
		descriptions: make(map[string]string),
	}
}

func (s *InMemorySecretStore) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.GetErr != nil {
		return "", s.GetErr
	}

	value, ok := s.values[name]
	if !ok {
		return "", ierr.NewError("parameter not found").
			WithHintf("No secret stored under %s", name).
			Mark(ierr.ErrNotFound)
	}
	return value, nil
}

func (s *InMemorySecretStore) Put(ctx context.Context, name, value, description string, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.PutErr != nil {
		return s.PutErr
	}

	if _, exists := s.values[name]; exists && !overwrite {
		return ierr.NewError("parameter already exists").
			WithHintf("Secret %s exists and overwrite is false", name).
			Mark(ierr.ErrAlreadyExists)
	}

	s.values[name] = value
	s.descriptions[name] = description
	return nil
}

// Set seeds a value directly, bypassing error injection.
func (s *InMemorySecretStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Delete removes a stored value.
func (s *InMemorySecretStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
	delete(s.descriptions, name)
}

// Has reports whether a value is stored under name.
func (s *InMemorySecretStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

// Value returns the stored value, or "" when absent.
func (s *InMemorySecretStore) Value(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

// Clear drops all stored values and injected failures.
func (s *InMemorySecretStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.descriptions = make(map[string]string)
	s.GetErr = nil
	s.PutErr = nil
}
