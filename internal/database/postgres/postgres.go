// Package postgres implements the identity and audit repositories on
// PostgreSQL with pgvector embeddings.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
)

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db          *sql.DB
	lockTimeout time.Duration

	// writeMu keeps writers of this process from queueing on the advisory
	// lock with one connection each.
	writeMu sync.Mutex
}

func init() {
	open := func(ctx context.Context, dsn string, cfg config.DatabaseConfig) (*database.Backend, error) {
		cfg.URL = dsn
		pool, err := NewPool(ctx, &cfg)
		if err != nil {
			return nil, err
		}
		return pool.Backend(), nil
	}
	database.RegisterBackend("postgres", false, open)
	database.RegisterBackend("postgresql", false, open)
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	// Verify connection.
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}

	return &Pool{db: db, lockTimeout: lockTimeout}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Backend exposes the pool's repositories as a database.Backend.
func (p *Pool) Backend() *database.Backend {
	return database.NewBackend("postgres", NewIdentityRepository(p), NewAuditRepository(p), p.Migrate, p.MigrationsApplied, p.Close)
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
