package handler

import (
	"net/http"
	"time"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/pkg/apierror"
	"pricelens-gateway/pkg/response"

	"go.uber.org/zap"
)

// AuthHandler handles sign-in, sign-up and session HTTP requests.
type AuthHandler struct {
	auth *service.AuthService
	errs errorWriter
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, errs: errorWriter{logger: logger.Named("handler")}}
}

// SignInRequest represents the request body for sign-in.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of the signed-in user.
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

// SessionResponse represents the response for sign-in and refresh.
type SessionResponse struct {
	Token     string       `json:"token,omitempty"`
	ExpiresAt time.Time    `json:"expires_at"`
	ExpiresIn int          `json:"expires_in"`
	User      UserResponse `json:"user"`
}

// SignUpResponse represents the response for sign-up.
type SignUpResponse struct {
	ConfirmationRequired bool             `json:"confirmation_required"`
	Session              *SessionResponse `json:"session,omitempty"`
}

func sessionResponse(token string, sess *model.Session) *SessionResponse {
	return &SessionResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		ExpiresIn: int(time.Until(sess.ExpiresAt).Seconds()),
		User: UserResponse{
			ID:          sess.UserID,
			Email:       sess.Email,
			DisplayName: sess.DisplayName,
			IsAdmin:     sess.IsAdmin,
		},
	}
}

// SignIn handles POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	res, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, sessionResponse(res.Token, res.Session))
}

// SignUp handles POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req service.SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	res, err := h.auth.SignUp(r.Context(), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	out := SignUpResponse{ConfirmationRequired: res.ConfirmationRequired}
	if res.Session != nil {
		out.Session = sessionResponse(res.Token, res.Session)
	}
	response.Created(w, out)
}

// SignOut handles POST /api/v1/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	if !p.IsLoggedIn() {
		response.Error(w, apierror.Unauthorized(""))
		return
	}
	if err := h.auth.SignOut(r.Context(), p.SessionToken); err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.NoContent(w)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	if !p.IsLoggedIn() {
		response.Error(w, apierror.Unauthorized(""))
		return
	}
	sess, err := h.auth.Refresh(r.Context(), p.SessionToken)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.OK(w, sessionResponse("", sess))
}

// Me handles GET /api/v1/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	if !p.IsLoggedIn() {
		response.Error(w, apierror.Unauthorized(""))
		return
	}
	response.OK(w, UserResponse{
		ID:          p.UserID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		IsAdmin:     p.IsAdmin,
	})
}
