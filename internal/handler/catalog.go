package handler

import (
	"net/http"
	"strconv"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/pkg/apierror"
	"pricelens-gateway/pkg/response"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxTrendingLimit caps the trending feed size a client can ask for.
const maxTrendingLimit = 100

// CatalogHandler handles product browsing HTTP requests.
type CatalogHandler struct {
	catalog *service.CatalogService
	errs    errorWriter
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog *service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, errs: errorWriter{logger: logger.Named("handler")}}
}

// Categories handles GET /api/v1/categories
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, categories)
}

// CategoryProducts handles GET /api/v1/categories/{id}/products
func (h *CatalogHandler) CategoryProducts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.catalog.CategoryProducts(r.Context(), model.ID(chi.URLParam(r, "id")), f)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeListing(w, res)
}

// Retailers handles GET /api/v1/retailers
func (h *CatalogHandler) Retailers(w http.ResponseWriter, r *http.Request) {
	retailers, err := h.catalog.Retailers(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, retailers)
}

// RetailerProducts handles GET /api/v1/retailers/{id}/products
func (h *CatalogHandler) RetailerProducts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.catalog.RetailerProducts(r.Context(), model.ID(chi.URLParam(r, "id")), f)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeListing(w, res)
}

// Search handles GET /api/v1/search?q=
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"), f)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeListing(w, res)
}

// Autocomplete handles GET /api/v1/search/autocomplete?q=
//
// A request replaced by a newer keystroke from the same session gets 204.
func (h *CatalogHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	client := r.RemoteAddr
	if p := principal.FromContext(r.Context()); p.IsLoggedIn() {
		client = p.SessionToken
	}

	suggestions, err := h.catalog.Suggest(r.Context(), client, r.URL.Query().Get("q"))
	if isSuperseded(err) {
		response.NoContent(w)
		return
	}
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, suggestions)
}

// Trending handles GET /api/v1/trending
func (h *CatalogHandler) Trending(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxTrendingLimit {
			response.Error(w, apierror.ValidationError("Invalid limit",
				apierror.FieldError{Field: "limit", Message: "must be between 1 and 100"}))
			return
		}
	}
	res, err := h.catalog.Trending(r.Context(), limit, f)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeListing(w, res)
}

// PriceDrops handles GET /api/v1/deals/price-drops
func (h *CatalogHandler) PriceDrops(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.catalog.PriceDrops(r.Context(), f)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeListing(w, res)
}

// NewArrivals handles GET /api/v1/deals/new-arrivals
func (h *CatalogHandler) NewArrivals(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.catalog.NewArrivals(r.Context(), f)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeListing(w, res)
}

// Home handles GET /api/v1/home
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	feed, err := h.catalog.Home(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, feed)
}
