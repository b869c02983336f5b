package repository

import (
	"context"
	"errors"
	"time"

	"pricelens-gateway/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ProfileRepository defines user profile data access methods.
type ProfileRepository interface {
	// GetProfile returns the profile of userID, or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)

	// SaveProfile inserts or replaces a profile.
	SaveProfile(ctx context.Context, p *model.Profile) error

	// Ping checks the connection.
	Ping(ctx context.Context) error
}

// AuditFilter narrows a review audit listing.
type AuditFilter struct {
	ReviewerID string
	Outcome    string
	Limit      int
	Offset     int
}

// AuditStats summarizes the review audit log.
type AuditStats struct {
	Total          int64      `json:"total"`
	Failed         int64      `json:"failed"`
	LastRecordedAt *time.Time `json:"last_recorded_at,omitempty"`
	SizeBytes      int64      `json:"size_bytes"`
}

// AuditRepository stores settled review mutations.
type AuditRepository interface {
	// Record appends a settled mutation and returns its row id. Recording the
	// same mutation twice keeps the first row.
	Record(ctx context.Context, rec *model.ReviewRecord) (int64, error)

	// List returns matching records newest first, plus the total match count.
	List(ctx context.Context, f AuditFilter) ([]model.ReviewRecord, int64, error)

	// DeleteOlderThan removes records created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats returns statistics about the audit log.
	Stats(ctx context.Context) (*AuditStats, error)

	// Close closes the repository connection.
	Close() error
}

const defaultAuditLimit = 50

func (f AuditFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return defaultAuditLimit
	}
	return f.Limit
}

func (f AuditFilter) offset() int {
	return max(f.Offset, 0)
}
