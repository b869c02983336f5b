package handler

import (
	"net/http"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/pkg/apierror"
	"pricelens-gateway/pkg/response"

	"go.uber.org/zap"
)

// ProfileHandler handles profile HTTP requests.
type ProfileHandler struct {
	profiles *service.ProfileService
	errs     errorWriter
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles *service.ProfileService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, errs: errorWriter{logger: logger.Named("handler")}}
}

// Get handles GET /api/v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	if !p.IsLoggedIn() {
		response.Error(w, apierror.Unauthorized(""))
		return
	}
	profile, err := h.profiles.Get(r.Context(), p)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, profile)
}

// Update handles PUT /api/v1/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	if !p.IsLoggedIn() {
		response.Error(w, apierror.Unauthorized(""))
		return
	}
	var upd model.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		h.errs.write(w, r, err)
		return
	}
	profile, err := h.profiles.Update(r.Context(), p, upd)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, profile)
}
