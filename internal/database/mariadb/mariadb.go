// Package mariadb implements the identity and audit repositories on
// MariaDB/MySQL, storing embeddings as JSON arrays.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
)

// errDupEntry is ER_DUP_ENTRY.
const errDupEntry = 1062

// Pool manages a MariaDB connection pool.
type Pool struct {
	db          *sql.DB
	lockTimeout time.Duration
	writeMu     sync.Mutex
}

func init() {
	database.RegisterBackend("mysql", true, func(ctx context.Context, dsn string, cfg config.DatabaseConfig) (*database.Backend, error) {
		pool, err := NewPool(ctx, dsn, cfg)
		if err != nil {
			return nil, err
		}
		return pool.Backend(), nil
	})
}

// NormalizeDSN forces the driver options the repositories rely on:
// DATETIME columns scan into time.Time in UTC and UPDATE reports matched rows.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// NewPool creates a new MariaDB connection pool.
func NewPool(ctx context.Context, dsn string, cfg config.DatabaseConfig) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
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
	return database.NewBackend("mariadb", NewIdentityRepository(p), NewAuditRepository(p), p.Migrate, p.MigrationsApplied, p.Close)
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDupEntry
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// now returns the current time at DATETIME(6) precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
