package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"pricelens-gateway/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteAuditRepository implements AuditRepository using SQLite.
type SQLiteAuditRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteAuditRepository opens (or creates) the audit database at dbPath.
// Use ":memory:" for a throwaway database.
func NewSQLiteAuditRepository(dbPath string) (*SQLiteAuditRepository, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createAuditTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteAuditRepository{db: db}, nil
}

func createAuditTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS review_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mutation_id TEXT NOT NULL UNIQUE,
		anomaly_id TEXT NOT NULL,
		resolution TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		reviewer_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_review_audit_reviewer ON review_audit(reviewer_id);
	CREATE INDEX IF NOT EXISTS idx_review_audit_created_at ON review_audit(created_at);
	`
	_, err := db.Exec(query)
	return err
}

// Record appends a settled mutation.
func (r *SQLiteAuditRepository) Record(ctx context.Context, rec *model.ReviewRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO review_audit
			(mutation_id, anomaly_id, resolution, display_name, reviewer_id, outcome, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mutation_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		rec.MutationID, rec.AnomalyID, string(rec.Resolution), rec.DisplayName, rec.ReviewerID,
		rec.Outcome, rec.ErrorMessage, rec.DurationMs, rec.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record review: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var id int64
		if err := r.db.QueryRowContext(ctx, `SELECT id FROM review_audit WHERE mutation_id = ?`, rec.MutationID).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to look up review: %w", err)
		}
		rec.ID = id
		return id, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

// List returns matching records newest first.
func (r *SQLiteAuditRepository) List(ctx context.Context, f AuditFilter) ([]model.ReviewRecord, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	where, args := auditWhere(f, func(int) string { return "?" })

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM review_audit"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	query := `
		SELECT id, mutation_id, anomaly_id, resolution, display_name, reviewer_id, outcome, error_message, duration_ms, created_at
		FROM review_audit` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, f.limit(), f.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	records, err := scanReviewRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// DeleteOlderThan removes records created before cutoff.
func (r *SQLiteAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `DELETE FROM review_audit WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune reviews: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns statistics about the audit database.
func (r *SQLiteAuditRepository) Stats(ctx context.Context) (*AuditStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats AuditStats
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN outcome != ? THEN 1 ELSE 0 END), 0) FROM review_audit`
	if err := r.db.QueryRowContext(ctx, query, model.OutcomeSucceeded).Scan(&stats.Total, &stats.Failed); err != nil {
		return nil, err
	}

	// MAX() drops the column type, so the newest row is read directly.
	var last time.Time
	if err := r.db.QueryRowContext(ctx, "SELECT created_at FROM review_audit ORDER BY created_at DESC LIMIT 1").Scan(&last); err == nil {
		stats.LastRecordedAt = &last
	}

	// Database size (approximate from page count)
	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats.SizeBytes = pageCount * pageSize

	return &stats, nil
}

// Close closes the database connection.
func (r *SQLiteAuditRepository) Close() error {
	return r.db.Close()
}

// auditWhere builds the WHERE clause for f. placeholder renders the n-th
// bind parameter in the driver's syntax.
func auditWhere(f AuditFilter, placeholder func(n int) string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ReviewerID != "" {
		args = append(args, f.ReviewerID)
		conds = append(conds, "reviewer_id = "+placeholder(len(args)))
	}
	if f.Outcome != "" {
		args = append(args, f.Outcome)
		conds = append(conds, "outcome = "+placeholder(len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanReviewRecords(rows *sql.Rows) ([]model.ReviewRecord, error) {
	records := []model.ReviewRecord{}
	for rows.Next() {
		var (
			rec        model.ReviewRecord
			resolution string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.MutationID,
			&rec.AnomalyID,
			&resolution,
			&rec.DisplayName,
			&rec.ReviewerID,
			&rec.Outcome,
			&rec.ErrorMessage,
			&rec.DurationMs,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		rec.Resolution = model.Resolution(resolution)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reviews: %w", err)
	}
	return records, nil
}

// Ensure SQLiteAuditRepository implements AuditRepository
var _ AuditRepository = (*SQLiteAuditRepository)(nil)
