package mariadb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
)

const identityColumns = `id, name, surname, email, embedding, image_ref, created_at, updated_at`

// IdentityRepository provides MariaDB-backed identity storage
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
		raw             []byte
	)
	if err := row.Scan(
		&identity.ID, &identity.Name, &identity.Surname, &email, &raw, &imageRef,
		&identity.CreatedAt, &identity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &identity.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding of identity %d: %w", identity.ID, err)
	}
	identity.Email = email.String
	identity.ImageRef = imageRef.String
	return &identity, nil
}

func encodeEmbedding(embedding []float32) ([]byte, error) {
	if embedding == nil {
		embedding = []float32{}
	}
	raw, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return raw, nil
}

// Get retrieves an identity by ID
func (r *IdentityRepository) Get(ctx context.Context, id int64) (*database.Identity, error) {
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
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
	raw, err := encodeEmbedding(identity.Embedding)
	if err != nil {
		return err
	}

	ts := now()
	result, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO identities (name, surname, email, embedding, image_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, identity.Name, identity.Surname, nullString(identity.Email), raw, nullString(identity.ImageRef), ts, ts)
	if isDuplicateEntry(err) {
		return database.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted identity id: %w", err)
	}
	identity.ID = id
	identity.CreatedAt = ts
	identity.UpdatedAt = ts
	return nil
}

// Update replaces all mutable columns of an identity in one statement
func (r *IdentityRepository) Update(ctx context.Context, identity *database.Identity) error {
	raw, err := encodeEmbedding(identity.Embedding)
	if err != nil {
		return err
	}

	ts := now()
	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE identities
		SET name = ?, surname = ?, email = ?, embedding = ?, image_ref = ?, updated_at = ?
		WHERE id = ?
	`, identity.Name, identity.Surname, nullString(identity.Email), raw, nullString(identity.ImageRef), ts, identity.ID)
	if isDuplicateEntry(err) {
		return database.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update identity %d: %w", identity.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity %d: %w", identity.ID, err)
	}
	if n == 0 {
		return database.ErrNotFound
	}

	if err := r.pool.db.QueryRowContext(ctx, `SELECT created_at FROM identities WHERE id = ?`, identity.ID).Scan(&identity.CreatedAt); err != nil {
		return fmt.Errorf("reload identity %d: %w", identity.ID, err)
	}
	identity.UpdatedAt = ts
	return nil
}

// Delete removes an identity
func (r *IdentityRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
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

// Serialize runs fn while holding the named GET_LOCK lock, so writers in
// other processes sharing the database wait as well.
func (r *IdentityRepository) Serialize(ctx context.Context, fn func(ctx context.Context) error) error {
	r.pool.writeMu.Lock()
	defer r.pool.writeMu.Unlock()

	conn, err := r.pool.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock connection: %w", err)
	}
	defer conn.Close()

	var got sql.NullInt64
	seconds := max(1, int(r.pool.lockTimeout.Seconds()))
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, database.RegistryLockName, seconds).Scan(&got); err != nil {
		return fmt.Errorf("acquire registry lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return database.ErrLockTimeout
	}
	defer func() {
		_, err := conn.ExecContext(context.WithoutCancel(ctx), `SELECT RELEASE_LOCK(?)`, database.RegistryLockName)
		if err != nil {
			// Never return a connection that may still hold the lock to the pool.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	return fn(ctx)
}
