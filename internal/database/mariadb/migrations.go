package mariadb

import (
	"context"
	"embed"

	"github.com/kozaktomas/face-registry/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func (p *Pool) migrator() *database.Migrator {
	return &database.Migrator{
		DB:  p.db,
		FS:  migrationsFS,
		Dir: "migrations",
		CreateTableSQL: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version VARCHAR(255) NOT NULL PRIMARY KEY,
				applied_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
			)`,
		InsertVersionSQL: "INSERT INTO schema_migrations (version) VALUES (?)",
		SplitStatements:  true,
	}
}

// Migrate applies all pending migrations. MariaDB commits DDL implicitly, so
// a failed file may leave its earlier statements applied; every statement is
// written with IF NOT EXISTS so the file can be rerun.
func (p *Pool) Migrate(ctx context.Context) error {
	_, err := p.migrator().Apply(ctx)
	return err
}

// MigrationsApplied returns the list of applied migrations
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	return p.migrator().Applied(ctx)
}
