package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"pricelens-gateway/internal/autocomplete"
	"pricelens-gateway/internal/listing"
	"pricelens-gateway/internal/middleware"
	"pricelens-gateway/internal/review"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/internal/upstream"
	"pricelens-gateway/pkg/apierror"
	"pricelens-gateway/pkg/response"

	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// errorWriter translates service errors into API responses.
type errorWriter struct {
	logger *zap.Logger
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	response.Error(w, e.translate(r, err))
}

func (e errorWriter) translate(r *http.Request, err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if apiErr := upstream.AsAPIError(err); apiErr != nil {
		return apiErr
	}

	switch {
	case errors.Is(err, service.ErrInvalidSession):
		return apierror.Unauthorized("Invalid or expired session")
	case errors.Is(err, service.ErrInvalidCredentials):
		return apierror.Unauthorized("Invalid email or password")
	case errors.Is(err, service.ErrEmptyQuery):
		return apierror.ValidationError("Search query is required", apierror.FieldError{Field: "q", Message: "must not be empty"})
	case errors.Is(err, service.ErrProfilesDisabled):
		return apierror.ServiceUnavailable("Profiles are not available")
	case errors.Is(err, review.ErrUnknownAnomaly):
		return apierror.NotFound("Anomaly is not in your review list")
	case errors.Is(err, review.ErrInvalidResolution):
		return apierror.ValidationError("Invalid resolution", apierror.FieldError{Field: "resolution", Message: "must be CONFIRMED_SALE or DATA_ERROR"})
	case errors.Is(err, review.ErrNothingToCommit):
		return apierror.Conflict("No resolution is awaiting confirmation")
	case errors.Is(err, review.ErrClosed):
		return apierror.ServiceUnavailable("Server is shutting down")
	}

	e.logger.Error("unhandled error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Error(err),
	)
	return apierror.InternalError("")
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	return nil
}

// parseFilters reads the listing filters of r.
func parseFilters(r *http.Request) (listing.FilterState, error) {
	f, errs := listing.ParseQuery(r.URL.Query())
	if len(errs) == 0 {
		return f, nil
	}
	details := make([]apierror.FieldError, len(errs))
	for i, fe := range errs {
		details[i] = apierror.FieldError{Field: fe.Field, Message: fe.Message}
	}
	return f, apierror.ValidationError("Invalid filters", details...)
}

// writeListing sends a rendered listing with its pagination meta.
func writeListing[T any](w http.ResponseWriter, res listing.Result[T]) {
	items := res.Items
	if items == nil {
		items = []T{}
	}
	response.JSONWithMeta(w, http.StatusOK, items, response.Meta{
		Page:    res.Page,
		Limit:   res.PerPage,
		Total:   int64(res.Total),
		HasMore: res.HasMore,
	})
}

func isSuperseded(err error) bool {
	return errors.Is(err, autocomplete.ErrSuperseded)
}
