// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

// MockIdentityStore is an in-memory implementation of database.IdentityStore
type MockIdentityStore struct {
	mu         sync.RWMutex
	writeMu    sync.Mutex
	identities []database.Identity
	nextID     int64

	// Error injection
	GetError       error
	ListError      error
	CountError     error
	CreateError    error
	UpdateError    error
	DeleteError    error
	SerializeError error

	// SerializeCalls counts how many times the write lock was taken
	SerializeCalls int
}

// NewMockIdentityStore creates a new empty identity store
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{nextID: 1}
}

// AddIdentity seeds the store, assigning an ID when the identity has none
func (m *MockIdentityStore) AddIdentity(identity database.Identity) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity.ID == 0 {
		identity.ID = m.nextID
	}
	if identity.ID >= m.nextID {
		m.nextID = identity.ID + 1
	}
	m.identities = append(m.identities, cloneIdentity(identity))
	return identity.ID
}

func cloneIdentity(identity database.Identity) database.Identity {
	identity.Embedding = slices.Clone(identity.Embedding)
	return identity
}

func (m *MockIdentityStore) indexOf(id int64) int {
	for i := range m.identities {
		if m.identities[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *MockIdentityStore) emailTaken(email string, except int64) bool {
	if email == "" {
		return false
	}
	for i := range m.identities {
		if m.identities[i].ID != except && strings.EqualFold(m.identities[i].Email, email) {
			return true
		}
	}
	return false
}

// Get retrieves an identity by ID
func (m *MockIdentityStore) Get(ctx context.Context, id int64) (*database.Identity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(id)
	if i < 0 {
		return nil, database.ErrNotFound
	}
	identity := cloneIdentity(m.identities[i])
	return &identity, nil
}

// List returns all identities in insertion order
func (m *MockIdentityStore) List(ctx context.Context) ([]database.Identity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Identity, len(m.identities))
	for i := range m.identities {
		out[i] = cloneIdentity(m.identities[i])
	}
	return out, nil
}

// Count returns the number of identities
func (m *MockIdentityStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// Create inserts a new identity, enforcing email uniqueness
func (m *MockIdentityStore) Create(ctx context.Context, identity *database.Identity) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTaken(identity.Email, 0) {
		return database.ErrDuplicateEmail
	}
	now := time.Now().UTC()
	identity.ID = m.nextID
	identity.CreatedAt = now
	identity.UpdatedAt = now
	m.nextID++
	m.identities = append(m.identities, cloneIdentity(*identity))
	return nil
}

// Update replaces the mutable fields of an identity
func (m *MockIdentityStore) Update(ctx context.Context, identity *database.Identity) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(identity.ID)
	if i < 0 {
		return database.ErrNotFound
	}
	if m.emailTaken(identity.Email, identity.ID) {
		return database.ErrDuplicateEmail
	}
	identity.CreatedAt = m.identities[i].CreatedAt
	identity.UpdatedAt = time.Now().UTC()
	m.identities[i] = cloneIdentity(*identity)
	return nil
}

// Delete removes an identity
func (m *MockIdentityStore) Delete(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return database.ErrNotFound
	}
	m.identities = slices.Delete(m.identities, i, i+1)
	return nil
}

// Serialize runs fn under a process-local write lock
func (m *MockIdentityStore) Serialize(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.SerializeError != nil {
		return m.SerializeError
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	m.SerializeCalls++
	m.mu.Unlock()
	return fn(ctx)
}

// MockAuditStore is an in-memory implementation of database.AuditStore
type MockAuditStore struct {
	mu      sync.RWMutex
	records []database.AuditRecord
	nextID  int64

	// Error injection
	AppendError error
	ListError   error
}

// NewMockAuditStore creates a new empty audit store
func NewMockAuditStore() *MockAuditStore {
	return &MockAuditStore{nextID: 1}
}

// Append stores a record
func (m *MockAuditStore) Append(ctx context.Context, record *database.AuditRecord) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = m.nextID
	m.nextID++
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	m.records = append(m.records, *record)
	return nil
}

// ListRecent returns up to limit records, newest first
func (m *MockAuditStore) ListRecent(ctx context.Context, limit int) ([]database.AuditRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.AuditRecord, 0, min(limit, len(m.records)))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// Records returns all records in insertion order
func (m *MockAuditStore) Records() []database.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.records)
}
