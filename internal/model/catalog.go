package model

import (
	"math"
	"strings"
	"time"
)

// Product is one row in any product listing: category and retailer pages,
// search results, price drops, new arrivals and trending feeds.
type Product struct {
	ID               ID        `json:"id"`
	Name             string    `json:"name"`
	Brand            string    `json:"brand,omitempty"`
	Category         string    `json:"category,omitempty"`
	CategoryID       ID        `json:"category_id,omitempty"`
	Retailer         string    `json:"retailer,omitempty"`
	RetailerID       ID        `json:"retailer_id,omitempty"`
	Price            float64   `json:"price"`
	OldPrice         float64   `json:"old_price,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	PercentageChange float64   `json:"percentage_change"`
	InStock          bool      `json:"in_stock"`
	ImageURL         string    `json:"image_url,omitempty"`
	URL              string    `json:"url,omitempty"`
	DaysSince        float64   `json:"days_since,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// Normalize applies the defaulting rules shared by every product endpoint.
func (p *Product) Normalize(now time.Time) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.PercentageChange == 0 {
		p.PercentageChange = PercentChange(p.OldPrice, p.Price)
	}
	if p.DaysSince == 0 && !p.UpdatedAt.IsZero() && now.After(p.UpdatedAt) {
		p.DaysSince = math.Floor(now.Sub(p.UpdatedAt).Hours() / 24)
	}
}

// Category is a browsable product category.
type Category struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug,omitempty"`
	ParentID     ID     `json:"parent_id,omitempty"`
	ProductCount int    `json:"product_count"`
}

// Retailer is a store whose prices are tracked.
type Retailer struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
	ProductCount int    `json:"product_count"`
}

// Paged is one page of a server-paginated collection.
type Paged[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// HasMore reports whether the backend holds items past this page.
func (p Paged[T]) HasMore() bool {
	return p.PerPage > 0 && p.Page*p.PerPage < p.Total
}

// PercentChange returns the change from old to current in percent. A zero or
// negative old value yields 0.
func PercentChange(old, current float64) float64 {
	if old <= 0 {
		return 0
	}
	return (current - old) / old * 100
}
