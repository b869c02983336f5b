package handler

import (
	"net/http"
	"strconv"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/internal/repository"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/pkg/apierror"
	"pricelens-gateway/pkg/response"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ReviewHandler handles the admin anomaly review HTTP requests. Every route
// sits behind RequireAdmin, so a principal is always present.
type ReviewHandler struct {
	review *service.ReviewService
	errs   errorWriter
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(review *service.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{review: review, errs: errorWriter{logger: logger.Named("handler")}}
}

// ConfirmRequest is the body of a confirm request.
type ConfirmRequest struct {
	Resolution model.Resolution `json:"resolution"`
}

func reviewer(r *http.Request) string {
	return principal.FromContext(r.Context()).UserID
}

// List handles GET /api/v1/admin/review/anomalies
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	view, err := h.review.Anomalies(r.Context(), reviewer(r), f.Page, refresh, f)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, view)
}

// PriceHistory handles GET /api/v1/admin/review/anomalies/{id}/price-history
func (h *ReviewHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	points, err := h.review.PriceHistory(r.Context(), model.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, points)
}

// Confirm handles POST /api/v1/admin/review/anomalies/{id}/confirm
func (h *ReviewHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	pending, err := h.review.Confirm(reviewer(r), model.ID(chi.URLParam(r, "id")), req.Resolution)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, pending)
}

// Cancel handles POST /api/v1/admin/review/cancel
func (h *ReviewHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.review.Cancel(reviewer(r)))
}

// Commit handles POST /api/v1/admin/review/commit
//
// The response carries the notice immediately; the backend request settles
// in the background.
func (h *ReviewHandler) Commit(w http.ResponseWriter, r *http.Request) {
	notice, err := h.review.Commit(r.Context(), reviewer(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, http.StatusAccepted, notice)
}

// Dismiss handles POST /api/v1/admin/review/dismiss
func (h *ReviewHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.review.Dismiss(reviewer(r)))
}

// State handles GET /api/v1/admin/review/state
func (h *ReviewHandler) State(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.review.State(reviewer(r)))
}

// Audit handles GET /api/v1/admin/review/audit
func (h *ReviewHandler) Audit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.AuditFilter{
		ReviewerID: q.Get("reviewer"),
		Outcome:    q.Get("outcome"),
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(w, apierror.ValidationError("Invalid pagination",
				apierror.FieldError{Field: name, Message: "must be a non-negative integer"}))
			return
		}
		*dst = n
	}

	records, total, err := h.review.Audit(r.Context(), f)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	if records == nil {
		records = []model.ReviewRecord{}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = len(records)
	}
	response.JSONWithMeta(w, http.StatusOK, records, response.Meta{
		Page:    1 + f.Offset/max(limit, 1),
		Limit:   limit,
		Total:   total,
		HasMore: int64(f.Offset+len(records)) < total,
	})
}
