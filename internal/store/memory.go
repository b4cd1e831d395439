package store

import (
	"context"
	"sync"

	"github.com/grantd-io/grantd/internal/models"
)

// MemoryLinkStore is an in-memory LinkStore for tests.
type MemoryLinkStore struct {
	mu    sync.RWMutex
	links map[string]models.Link
}

func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{links: make(map[string]models.Link)}
}

func (s *MemoryLinkStore) Put(_ context.Context, link models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.EntityID] = link
	return nil
}

func (s *MemoryLinkStore) Delete(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, entityID)
	return nil
}

func (s *MemoryLinkStore) QueryByPrincipalName(_ context.Context, principalName string) ([]models.Link, error) {
	return s.filter(func(l models.Link) bool { return l.PrincipalName == principalName })
}

func (s *MemoryLinkStore) QueryByEntityData(_ context.Context, entityData string) ([]models.Link, error) {
	return s.filter(func(l models.Link) bool { return l.EntityData == entityData })
}

func (s *MemoryLinkStore) QueryByPermissionSetName(_ context.Context, permissionSetName string) ([]models.Link, error) {
	return s.filter(func(l models.Link) bool { return l.PermissionSetName == permissionSetName })
}

func (s *MemoryLinkStore) filter(match func(models.Link) bool) ([]models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Link
	for _, link := range s.links {
		if match(link) {
			out = append(out, link)
		}
	}
	return out, nil
}

// MemoryPermissionSetStore is an in-memory PermissionSetStore for tests.
type MemoryPermissionSetStore struct {
	mu   sync.RWMutex
	sets map[string]models.PermissionSetDefinition
}

func NewMemoryPermissionSetStore() *MemoryPermissionSetStore {
	return &MemoryPermissionSetStore{sets: make(map[string]models.PermissionSetDefinition)}
}

func (s *MemoryPermissionSetStore) Get(_ context.Context, name string) (*models.PermissionSetDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if definition, ok := s.sets[name]; ok {
		return &definition, nil
	}
	return nil, nil
}

func (s *MemoryPermissionSetStore) Put(_ context.Context, definition models.PermissionSetDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[definition.Name] = definition
	return nil
}

func (s *MemoryPermissionSetStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, name)
	return nil
}

// MemoryArnStore is an in-memory ArnStore for tests.
type MemoryArnStore struct {
	mu   sync.RWMutex
	arns map[string]string
}

func NewMemoryArnStore() *MemoryArnStore {
	return &MemoryArnStore{arns: make(map[string]string)}
}

func (s *MemoryArnStore) Get(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arns[name], nil
}

func (s *MemoryArnStore) Put(_ context.Context, name, arn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arns[name] = arn
	return nil
}

func (s *MemoryArnStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.arns, name)
	return nil
}

// MemoryLedgerStore is an in-memory LedgerStore for tests.
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	entries map[string]models.LedgerEntry
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{entries: make(map[string]models.LedgerEntry)}
}

func (s *MemoryLedgerStore) Get(_ context.Context, key string) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[key]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (s *MemoryLedgerStore) Put(_ context.Context, entry models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

func (s *MemoryLedgerStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryLedgerStore) QueryByTagLookup(_ context.Context, tagKeyLookup string) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LedgerEntry
	for _, entry := range s.entries {
		if entry.TagKeyLookup == tagKeyLookup {
			out = append(out, entry)
		}
	}
	return out, nil
}
