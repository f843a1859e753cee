package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-registry/internal/database"
)

const identityColumns = `id, name, surname, email, embedding, image_ref, created_at, updated_at`

// IdentityRepository provides PostgreSQL-backed identity storage
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*database.Identity, error) {
	var (
		identity        database.Identity
		email, imageRef sql.NullString
		vec             pgvector.Vector
	)
	if err := row.Scan(
		&identity.ID, &identity.Name, &identity.Surname, &email, &vec, &imageRef,
		&identity.CreatedAt, &identity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	identity.Email = email.String
	identity.ImageRef = imageRef.String
	identity.Embedding = vec.Slice()
	return &identity, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Get retrieves an identity by ID
func (r *IdentityRepository) Get(ctx context.Context, id int64) (*database.Identity, error) {
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity %d: %w", id, err)
	}
	return identity, nil
}

// List returns all identities in insertion order
func (r *IdentityRepository) List(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []database.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// Count returns the number of identities
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Create inserts a new identity
func (r *IdentityRepository) Create(ctx context.Context, identity *database.Identity) error {
	err := r.pool.db.QueryRowContext(ctx, `
		INSERT INTO identities (name, surname, email, embedding, image_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, identity.Name, identity.Surname, nullString(identity.Email),
		pgvector.NewVector(identity.Embedding), nullString(identity.ImageRef),
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if isUniqueViolation(err) {
		return database.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// Update replaces all mutable columns of an identity in one statement
func (r *IdentityRepository) Update(ctx context.Context, identity *database.Identity) error {
	err := r.pool.db.QueryRowContext(ctx, `
		UPDATE identities
		SET name = $2, surname = $3, email = $4, embedding = $5, image_ref = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, identity.ID, identity.Name, identity.Surname, nullString(identity.Email),
		pgvector.NewVector(identity.Embedding), nullString(identity.ImageRef),
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if isUniqueViolation(err) {
		return database.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update identity %d: %w", identity.ID, err)
	}
	return nil
}

// Delete removes an identity
func (r *IdentityRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity %d: %w", id, err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Serialize runs fn while holding a session-level advisory lock, so writers
// in other processes sharing the database wait as well.
func (r *IdentityRepository) Serialize(ctx context.Context, fn func(ctx context.Context) error) error {
	r.pool.writeMu.Lock()
	defer r.pool.writeMu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, r.pool.lockTimeout)
	defer cancel()

	conn, err := r.pool.db.Conn(lockCtx)
	if err != nil {
		return fmt.Errorf("acquire lock connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, database.RegistryLockKey); err != nil {
		if errors.Is(lockCtx.Err(), context.DeadlineExceeded) {
			return database.ErrLockTimeout
		}
		return fmt.Errorf("acquire registry lock: %w", err)
	}
	defer func() {
		_, err := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, database.RegistryLockKey)
		if err != nil {
			// Never return a connection that may still hold the lock to the pool.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	return fn(ctx)
}
