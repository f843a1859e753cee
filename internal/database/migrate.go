package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// Migrator applies embedded .sql files in lexical order and records each
// applied file in schema_migrations.
type Migrator struct {
	DB  *sql.DB
	FS  fs.FS
	Dir string

	// InsertVersionSQL records an applied file; it takes the filename as its only argument.
	InsertVersionSQL string
	// CreateTableSQL creates the schema_migrations table if missing.
	CreateTableSQL string
	// SplitStatements executes each ';'-terminated statement separately,
	// for drivers that reject multi-statement Exec.
	SplitStatements bool
}

// applied returns a set of already-applied migration versions.
func (m *Migrator) applied(ctx context.Context) (map[string]bool, error) {
	if _, err := m.DB.ExecContext(ctx, m.CreateTableSQL); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := m.DB.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// pending returns sorted SQL migration filenames not yet applied.
func (m *Migrator) pending(applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(m.FS, m.Dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !applied[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Apply runs every pending migration, one transaction per file, and returns
// the names of the files it applied.
func (m *Migrator) Apply(ctx context.Context) ([]string, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	files, err := m.pending(applied)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, file := range files {
		content, err := fs.ReadFile(m.FS, path.Join(m.Dir, file))
		if err != nil {
			return done, fmt.Errorf("read migration %s: %w", file, err)
		}

		if err := m.applyFile(ctx, file, string(content)); err != nil {
			return done, err
		}
		done = append(done, file)
	}

	return done, nil
}

func (m *Migrator) applyFile(ctx context.Context, file, content string) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", file, err)
	}

	statements := []string{content}
	if m.SplitStatements {
		statements = SplitSQL(content)
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}

	if _, err := tx.ExecContext(ctx, m.InsertVersionSQL, file); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", file, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}

// Applied returns the list of applied migrations, sorted.
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// SplitSQL splits a script into statements on ';' line endings, dropping
// blank statements and full-line "--" comments.
func SplitSQL(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")
			if stmt != "" {
				out = append(out, stmt)
			}
			cur.Reset()
		}
	}
	if stmt := strings.TrimSpace(cur.String()); stmt != "" {
		out = append(out, stmt)
	}
	return out
}
