package model

import "time"

// Outcome values for a settled review mutation.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
	OutcomeRolledBack = "rolled_back"
)

// ReviewRecord is one settled anomaly resolution in the review audit log.
type ReviewRecord struct {
	ID           int64      `json:"id"`
	MutationID   string     `json:"mutation_id"`
	AnomalyID    string     `json:"anomaly_id"`
	Resolution   Resolution `json:"resolution"`
	DisplayName  string     `json:"display_name"`
	ReviewerID   string     `json:"reviewer_id"`
	Outcome      string     `json:"outcome"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	CreatedAt    time.Time  `json:"created_at"`
}
