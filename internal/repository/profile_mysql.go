package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pricelens-gateway/internal/model"
)

// MySQLProfileRepository implements ProfileRepository using MySQL.
type MySQLProfileRepository struct {
	db *sql.DB
}

// NewMySQLProfileRepository creates a new MySQL profile repository.
func NewMySQLProfileRepository(db *sql.DB) *MySQLProfileRepository {
	return &MySQLProfileRepository{db: db}
}

// Migrate creates the profile table if it does not exist.
func (r *MySQLProfileRepository) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id VARCHAR(64) NOT NULL PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			display_name VARCHAR(64) NOT NULL DEFAULT '',
			preferred_currency CHAR(3) NOT NULL DEFAULT 'USD',
			alert_threshold DOUBLE NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create user_profiles: %w", err)
	}
	return nil
}

// GetProfile returns the profile of userID.
func (r *MySQLProfileRepository) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	query := `
		SELECT user_id, email, display_name, preferred_currency, alert_threshold, created_at, updated_at
		FROM user_profiles
		WHERE user_id = ?
		LIMIT 1`

	var p model.Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.Email,
		&p.DisplayName,
		&p.PreferredCurrency,
		&p.AlertThreshold,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &p, nil
}

// SaveProfile inserts the profile or updates every mutable column.
func (r *MySQLProfileRepository) SaveProfile(ctx context.Context, p *model.Profile) error {
	query := `
		INSERT INTO user_profiles
			(user_id, email, display_name, preferred_currency, alert_threshold, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			email = VALUES(email),
			display_name = VALUES(display_name),
			preferred_currency = VALUES(preferred_currency),
			alert_threshold = VALUES(alert_threshold),
			updated_at = VALUES(updated_at)`

	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.Email, p.DisplayName, p.PreferredCurrency, p.AlertThreshold, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *MySQLProfileRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Ensure MySQLProfileRepository implements ProfileRepository
var _ ProfileRepository = (*MySQLProfileRepository)(nil)
