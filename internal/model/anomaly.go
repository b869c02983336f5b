package model

import (
	"fmt"
	"time"
)

// Resolution classifies a reviewed anomaly.
type Resolution string

const (
	ResolutionConfirmedSale Resolution = "CONFIRMED_SALE"
	ResolutionDataError     Resolution = "DATA_ERROR"
)

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	return r == ResolutionConfirmedSale || r == ResolutionDataError
}

// Label returns the human-readable form used in notices.
func (r Resolution) Label() string {
	switch r {
	case ResolutionConfirmedSale:
		return "a confirmed sale"
	case ResolutionDataError:
		return "a data error"
	default:
		return string(r)
	}
}

// Anomaly is a flagged price observation awaiting review.
type Anomaly struct {
	ID               ID        `json:"id"`
	ProductID        ID        `json:"product_id"`
	ProductName      string    `json:"product_name"`
	RetailerName     string    `json:"retailer_name,omitempty"`
	Category         string    `json:"category,omitempty"`
	Price            float64   `json:"price"`
	OldPrice         float64   `json:"old_price"`
	PercentageChange float64   `json:"percentage_change"`
	AnomalyType      string    `json:"anomaly_type,omitempty"`
	Status           string    `json:"status,omitempty"`
	DetectedAt       time.Time `json:"detected_at,omitempty"`
}

// Normalize applies the anomaly endpoint defaulting rules.
func (a *Anomaly) Normalize() {
	if a.PercentageChange == 0 {
		a.PercentageChange = PercentChange(a.OldPrice, a.Price)
	}
	if a.Status == "" {
		a.Status = "pending"
	}
}

// DisplayName is the label shown for the anomaly in confirmations and notices.
func (a Anomaly) DisplayName() string {
	name := a.ProductName
	if name == "" {
		name = fmt.Sprintf("Anomaly #%s", a.ID)
	}
	if a.RetailerName != "" {
		return fmt.Sprintf("%s (%s)", name, a.RetailerName)
	}
	return name
}
