package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
)

// AuditRepository provides PostgreSQL-backed request history
type AuditRepository struct {
	pool *Pool
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(pool *Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append stores a record
func (r *AuditRepository) Append(ctx context.Context, record *database.AuditRecord) error {
	var ts sql.NullTime
	if !record.Timestamp.IsZero() {
		ts = sql.NullTime{Time: record.Timestamp, Valid: true}
	}
	err := r.pool.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (action, method, endpoint, status, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING id, created_at
	`, record.Action, record.Method, record.Endpoint, record.Status,
		nullString(record.IP), nullString(record.UserAgent), ts,
	).Scan(&record.ID, &record.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]database.AuditRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, action, method, endpoint, status, ip, user_agent, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []database.AuditRecord
	for rows.Next() {
		var (
			rec           database.AuditRecord
			ip, userAgent sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.Method, &rec.Endpoint, &rec.Status, &ip, &userAgent, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.IP = ip.String
		rec.UserAgent = userAgent.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
