package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/face-registry/internal/config"
)

// Backend bundles the repositories of one database connection.
type Backend struct {
	Name       string
	Identities IdentityStore
	Audit      AuditStore

	migrate func(ctx context.Context) error
	applied func(ctx context.Context) ([]string, error)
	close   func() error
}

// NewBackend is used by backend packages to assemble a Backend.
func NewBackend(
	name string, identities IdentityStore, audit AuditStore,
	migrate func(ctx context.Context) error, applied func(ctx context.Context) ([]string, error), closeFn func() error,
) *Backend {
	return &Backend{
		Name:       name,
		Identities: identities,
		Audit:      audit,
		migrate:    migrate,
		applied:    applied,
		close:      closeFn,
	}
}

// Migrate applies pending schema migrations.
func (b *Backend) Migrate(ctx context.Context) error {
	if b.migrate == nil {
		return nil
	}
	return b.migrate(ctx)
}

// AppliedMigrations lists the migration files recorded as applied.
func (b *Backend) AppliedMigrations(ctx context.Context) ([]string, error) {
	if b.applied == nil {
		return nil, nil
	}
	return b.applied(ctx)
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenFunc connects to a database. dsn has the URL scheme already stripped
// when the backend asked for it.
type OpenFunc func(ctx context.Context, dsn string, cfg config.DatabaseConfig) (*Backend, error)

type registration struct {
	open        OpenFunc
	stripScheme bool
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]registration{}
)

// RegisterBackend registers a backend constructor for a URL scheme.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(scheme string, stripScheme bool, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[scheme] = registration{open: open, stripScheme: stripScheme}
}

// Schemes lists the registered URL schemes.
func Schemes() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]string, 0, len(backends))
	for s := range backends {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open picks the backend registered for the scheme of cfg.URL.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database not configured: DATABASE_URL is required")
	}

	scheme, rest, ok := strings.Cut(cfg.URL, "://")
	if !ok {
		return nil, fmt.Errorf("DATABASE_URL must start with a scheme (%s)", strings.Join(Schemes(), ", "))
	}

	backendsMu.RLock()
	reg, found := backends[scheme]
	backendsMu.RUnlock()
	if !found {
		return nil, fmt.Errorf("no database backend registered for scheme %q", scheme)
	}

	dsn := cfg.URL
	if reg.stripScheme {
		dsn = rest
	}
	return reg.open(ctx, dsn, cfg)
}
