package service

import (
	"context"
	"strings"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/pkg/apierror"
)

// History window limits in days.
const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// AnalyticsAPI is the slice of the backend API used for price analytics.
type AnalyticsAPI interface {
	ProductPriceHistory(ctx context.Context, id model.ID, days int) ([]model.PricePoint, error)
	ProductForecast(ctx context.Context, id model.ID) (model.Forecast, error)
	AnalyticsPriceHistory(ctx context.Context, category string, days int) ([]model.PricePoint, error)
	MarketSummary(ctx context.Context) (model.MarketSummary, error)
}

// AnalyticsService serves price histories and forecasts.
type AnalyticsService struct {
	api AnalyticsAPI
}

// NewAnalyticsService creates an analytics service.
func NewAnalyticsService(api AnalyticsAPI) *AnalyticsService {
	return &AnalyticsService{api: api}
}

// ProductPriceHistory returns a product's price history over days.
func (s *AnalyticsService) ProductPriceHistory(ctx context.Context, id model.ID, days int) ([]model.PricePoint, error) {
	days, err := historyDays(days)
	if err != nil {
		return nil, err
	}
	return s.api.ProductPriceHistory(ctx, id, days)
}

// ProductForecast returns a product's price forecast.
func (s *AnalyticsService) ProductForecast(ctx context.Context, id model.ID) (model.Forecast, error) {
	return s.api.ProductForecast(ctx, id)
}

// PriceHistory returns aggregate price history, optionally for one category.
func (s *AnalyticsService) PriceHistory(ctx context.Context, category string, days int) ([]model.PricePoint, error) {
	days, err := historyDays(days)
	if err != nil {
		return nil, err
	}
	category = strings.TrimSpace(category)
	if strings.EqualFold(category, "all") {
		category = ""
	}
	return s.api.AnalyticsPriceHistory(ctx, category, days)
}

// MarketSummary returns the aggregate market summary.
func (s *AnalyticsService) MarketSummary(ctx context.Context) (model.MarketSummary, error) {
	return s.api.MarketSummary(ctx)
}

func historyDays(days int) (int, error) {
	switch {
	case days == 0:
		return DefaultHistoryDays, nil
	case days < 0 || days > MaxHistoryDays:
		return 0, apierror.ValidationError("Invalid history window",
			apierror.FieldError{Field: "days", Message: "days must be between 1 and 365"})
	default:
		return days, nil
	}
}
