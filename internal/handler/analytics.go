package handler

import (
	"net/http"
	"strconv"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/pkg/apierror"
	"pricelens-gateway/pkg/response"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AnalyticsHandler handles price history and forecast HTTP requests.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	errs      errorWriter
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, errs: errorWriter{logger: logger.Named("handler")}}
}

func queryDays(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.ValidationError("Invalid history window",
			apierror.FieldError{Field: "days", Message: "must be an integer"})
	}
	return days, nil
}

// ProductPriceHistory handles GET /api/v1/products/{id}/price-history
func (h *AnalyticsHandler) ProductPriceHistory(w http.ResponseWriter, r *http.Request) {
	days, err := queryDays(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	points, err := h.analytics.ProductPriceHistory(r.Context(), model.ID(chi.URLParam(r, "id")), days)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, points)
}

// ProductForecast handles GET /api/v1/products/{id}/price-forecast
func (h *AnalyticsHandler) ProductForecast(w http.ResponseWriter, r *http.Request) {
	forecast, err := h.analytics.ProductForecast(r.Context(), model.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, forecast)
}

// PriceHistory handles GET /api/v1/analytics/price-history
func (h *AnalyticsHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	days, err := queryDays(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	points, err := h.analytics.PriceHistory(r.Context(), r.URL.Query().Get("category"), days)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, points)
}

// MarketSummary handles GET /api/v1/analytics/market-summary
func (h *AnalyticsHandler) MarketSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.MarketSummary(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, summary)
}
