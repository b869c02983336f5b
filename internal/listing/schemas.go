package listing

import (
	"pricelens-gateway/internal/model"

	"golang.org/x/text/language"
)

// ProductSchema reads product listings.
var ProductSchema = Schema[model.Product]{
	Name:     func(p model.Product) string { return p.Name },
	Category: func(p model.Product) string { return p.Category },
	Retailer: func(p model.Product) string { return p.Retailer },
	InStock:  func(p model.Product) bool { return p.InStock },
	Price:    func(p model.Product) float64 { return p.Price },
	Change:   func(p model.Product) float64 { return p.PercentageChange },
	Age:      func(p model.Product) float64 { return p.DaysSince },
}

// AnomalySchema reads the anomaly review list. Anomalies carry no stock or
// age, so those predicates and comparators are skipped.
var AnomalySchema = Schema[model.Anomaly]{
	Name:     func(a model.Anomaly) string { return a.ProductName },
	Category: func(a model.Anomaly) string { return a.Category },
	Retailer: func(a model.Anomaly) string { return a.RetailerName },
	Price:    func(a model.Anomaly) float64 { return a.Price },
	Change:   func(a model.Anomaly) float64 { return a.PercentageChange },
}

// NewProducts returns the product pipeline with English collation.
func NewProducts() *Pipeline[model.Product] {
	return New(ProductSchema, language.English)
}

// NewAnomalies returns the anomaly pipeline with English collation.
func NewAnomalies() *Pipeline[model.Anomaly] {
	return New(AnomalySchema, language.English)
}
