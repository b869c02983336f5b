package model

import "time"

// PricePoint is one observation in a price history series.
type PricePoint struct {
	Date     time.Time `json:"date"`
	Price    float64   `json:"price"`
	Retailer string    `json:"retailer,omitempty"`
}

// Forecast is the backend's projected price path for one product.
type Forecast struct {
	ProductID   ID              `json:"product_id"`
	Points      []ForecastPoint `json:"points"`
	Trend       string          `json:"trend"`
	Confidence  float64         `json:"confidence"`
	GeneratedAt time.Time       `json:"generated_at,omitempty"`
}

// ForecastPoint is one projected price with its interval.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// Normalize applies the forecast endpoint defaulting rules.
func (f *Forecast) Normalize() {
	if f.Trend == "" {
		f.Trend = "stable"
	}
	if f.Points == nil {
		f.Points = []ForecastPoint{}
	}
	for i := range f.Points {
		if f.Points[i].Lower == 0 {
			f.Points[i].Lower = f.Points[i].Price
		}
		if f.Points[i].Upper == 0 {
			f.Points[i].Upper = f.Points[i].Price
		}
	}
}

// MarketSummary aggregates price movement across the tracked catalog.
type MarketSummary struct {
	TotalProducts     int       `json:"total_products"`
	TotalRetailers    int       `json:"total_retailers"`
	PriceDrops24h     int       `json:"price_drops_24h"`
	PriceIncreases24h int       `json:"price_increases_24h"`
	AverageChange     float64   `json:"average_change"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// HomeFeed bundles the discovery sections of the landing page.
type HomeFeed struct {
	Recommendations []Product      `json:"recommendations"`
	Trending        []Product      `json:"trending"`
	Market          *MarketSummary `json:"market,omitempty"`
}
