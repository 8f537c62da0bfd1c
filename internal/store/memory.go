package store

import (
	"context"
	"sync"

	"github.com/mcrsoft/keyserve/pkg/contracts/domain"
)

// MemoryStore is an in-process Store for tests and throwaway deployments.
// It offers the same atomicity per record as the durable backends but loses
// all state on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	keys     map[string]domain.Credential
	accounts map[string]domain.Account
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:     make(map[string]domain.Credential),
		accounts: make(map[string]domain.Account),
	}
}

func (s *MemoryStore) InsertKey(_ context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[cred.Token]; exists {
		return ErrDuplicateToken
	}
	s.keys[cred.Token] = cred
	return nil
}

func (s *MemoryStore) UpdateKey(_ context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[cred.Token]; !exists {
		return ErrKeyNotFound
	}
	s.keys[cred.Token] = cred
	return nil
}

func (s *MemoryStore) GetKey(_ context.Context, token string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, exists := s.keys[token]
	if !exists {
		return domain.Credential{}, ErrKeyNotFound
	}
	return cred, nil
}

func (s *MemoryStore) DeleteKey(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[token]; !exists {
		return ErrKeyNotFound
	}
	delete(s.keys, token)
	return nil
}

func (s *MemoryStore) ListKeys(_ context.Context) ([]domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]domain.Credential, 0, len(s.keys))
	for _, cred := range s.keys {
		keys = append(keys, cred)
	}
	return keys, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, exists := s.accounts[id]
	if !exists {
		return domain.Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (s *MemoryStore) UpsertAccount(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
