package database

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an identity does not exist.
	ErrNotFound = errors.New("identity not found")
	// ErrDuplicateEmail is returned when the email unique constraint rejects a write.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrLockTimeout is returned when the registry write lock could not be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for registry lock")
)

// IdentityReader provides read-only access to registered identities
type IdentityReader interface {
	// Get retrieves an identity by ID, returns ErrNotFound if missing
	Get(ctx context.Context, id int64) (*Identity, error)
	// List returns all identities in insertion (ID) order
	List(ctx context.Context) ([]Identity, error)
	// Count returns the number of registered identities
	Count(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to identities
type IdentityWriter interface {
	// Create inserts a new identity and fills in ID, CreatedAt and UpdatedAt.
	// A unique email violation is reported as ErrDuplicateEmail.
	Create(ctx context.Context, identity *Identity) error

	// Update replaces name, surname, email, embedding and image ref in a single
	// statement so readers never see a new image with an old embedding.
	Update(ctx context.Context, identity *Identity) error

	// Delete removes an identity, returns ErrNotFound if missing
	Delete(ctx context.Context, id int64) error

	// Serialize runs fn while holding the registry-wide write lock.
	// The lock is shared by every process using the same database so the
	// duplicate check and the write that follows it cannot interleave.
	Serialize(ctx context.Context, fn func(ctx context.Context) error) error
}

// IdentityStore is the full identity repository.
type IdentityStore interface {
	IdentityReader
	IdentityWriter
}

// AuditWriter appends request history entries
type AuditWriter interface {
	// Append stores a record and fills in ID and Timestamp when unset
	Append(ctx context.Context, record *AuditRecord) error
}

// AuditReader reads the request history
type AuditReader interface {
	// ListRecent returns up to limit records, newest first
	ListRecent(ctx context.Context, limit int) ([]AuditRecord, error)
}

// AuditStore is the full audit repository.
type AuditStore interface {
	AuditWriter
	AuditReader
}
