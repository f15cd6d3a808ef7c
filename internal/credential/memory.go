package credential

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps credentials in process memory. It backs tests and
// single-node development setups; deployments share state through the
// Redis store instead.
type MemoryStore struct {
	mutex   sync.Mutex
	entries map[string]*Credential
	done    chan struct{}
	once    sync.Once
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		entries: make(map[string]*Credential),
		done:    make(chan struct{}),
	}
	go store.janitor()
	return store
}

func (s *MemoryStore) Put(_ context.Context, cred Credential) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	if existing, ok := s.entries[cred.Value]; ok && now.Before(existing.ExpiresAt) {
		return ErrDuplicateValue
	}

	stored := cred
	s.entries[cred.Value] = &stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, value string) (Credential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.entries[value]
	if !ok || !time.Now().Before(entry.ExpiresAt) {
		return Credential{}, ErrNotFound
	}
	return *entry, nil
}

func (s *MemoryStore) Consume(_ context.Context, value string) (Credential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.entries[value]
	if !ok || !time.Now().Before(entry.ExpiresAt) {
		return Credential{}, ErrNotFound
	}
	if entry.Revoked {
		return Credential{}, ErrAlreadyConsumed
	}

	snapshot := *entry
	entry.Revoked = true
	return snapshot, nil
}

func (s *MemoryStore) Revoke(_ context.Context, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.entries[value]
	if !ok || !time.Now().Before(entry.ExpiresAt) {
		return ErrNotFound
	}
	entry.Revoked = true
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

// janitor opportunistically reclaims expired entries. Correctness never
// depends on its timing; Get and Consume treat expired entries as absent.
func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mutex.Lock()
			for value, entry := range s.entries {
				if !now.Before(entry.ExpiresAt) {
					delete(s.entries, value)
				}
			}
			s.mutex.Unlock()
		}
	}
}
