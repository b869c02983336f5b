package model

import "time"

// Profile holds per-user preferences kept by the gateway.
type Profile struct {
	UserID            string    `json:"user_id"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"display_name"`
	PreferredCurrency string    `json:"preferred_currency"`
	AlertThreshold    float64   `json:"alert_threshold"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ProfileUpdate is a partial profile change; nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName       *string  `json:"display_name"`
	PreferredCurrency *string  `json:"preferred_currency"`
	AlertThreshold    *float64 `json:"alert_threshold"`
}
