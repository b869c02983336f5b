package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/internal/upstream"
	"pricelens-gateway/pkg/apierror"

	"go.uber.org/zap"
)

// Auth service paths.
const (
	authTokenPath  = "/auth/v1/token"
	authSignupPath = "/auth/v1/signup"
	authLogoutPath = "/auth/v1/logout"
)

const (
	minPasswordLength  = 8
	maxDisplayNameRune = 64
)

// ErrInvalidCredentials is returned when the auth service rejects a sign-in.
var ErrInvalidCredentials = errors.New("invalid email or password")

// AuthProvider is the subset of the upstream client used against the
// external auth service.
type AuthProvider interface {
	PostJSON(ctx context.Context, path string, query url.Values, body, out any) error
}

// SignUpRequest is a new account request.
type SignUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	DisplayName     string `json:"display_name"`
}

// SignInResult is returned after a successful sign-in or sign-up.
type SignInResult struct {
	Token   string         `json:"token,omitempty"`
	Session *model.Session `json:"session,omitempty"`
	// ConfirmationRequired is set when the account exists but the auth
	// service wants the email confirmed before issuing tokens.
	ConfirmationRequired bool `json:"confirmation_required"`
}

// providerUser is the user object of the auth service.
type providerUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u providerUser) authUser() model.AuthUser {
	name, _ := u.UserMetadata["display_name"].(string)
	return model.AuthUser{ID: u.ID, Email: u.Email, DisplayName: name, Role: u.Role}
}

// providerGrant is a token response; sign-up may return only the user
// fields when confirmation is pending.
type providerGrant struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         providerUser `json:"user"`
	providerUser
}

func (g providerGrant) grant() model.AuthGrant {
	user := g.User
	if user.ID == "" {
		user = g.providerUser
	}
	return model.AuthGrant{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		ExpiresIn:    g.ExpiresIn,
		User:         user.authUser(),
	}
}

// AuthService signs users in against the external auth service and issues
// gateway sessions.
type AuthService struct {
	provider AuthProvider
	sessions *SessionService
	profiles *ProfileService
	isAdmin  func(email string) bool
	logger   *zap.Logger
}

// NewAuthService creates an auth service. profiles may be nil.
func NewAuthService(provider AuthProvider, sessions *SessionService, profiles *ProfileService, isAdmin func(string) bool, logger *zap.Logger) *AuthService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		provider: provider,
		sessions: sessions,
		profiles: profiles,
		isAdmin:  isAdmin,
		logger:   logger.Named("auth"),
	}
}

// SignIn exchanges credentials for a gateway session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apierror.ValidationError("Email and password are required")
	}

	var g providerGrant
	body := map[string]string{"email": email, "password": password}
	if err := s.provider.PostJSON(ctx, authTokenPath, url.Values{"grant_type": {"password"}}, body, &g); err != nil {
		if rejected(err) {
			s.logger.Info("sign-in rejected", zap.String("email", email))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.open(ctx, g.grant())
}

// SignUp validates req, creates the account and signs the user in when the
// auth service returns tokens right away.
func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (*SignInResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if details := ValidateSignUp(req); len(details) > 0 {
		return nil, apierror.ValidationError("Please correct the highlighted fields", details...)
	}

	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data":     map[string]string{"display_name": req.DisplayName},
	}
	var g providerGrant
	if err := s.provider.PostJSON(ctx, authSignupPath, nil, body, &g); err != nil {
		return nil, err
	}

	grant := g.grant()
	if grant.User.DisplayName == "" {
		grant.User.DisplayName = req.DisplayName
	}
	if grant.AccessToken == "" {
		s.logger.Info("sign-up awaiting confirmation", zap.String("email", req.Email))
		return &SignInResult{ConfirmationRequired: true}, nil
	}
	return s.open(ctx, grant)
}

// Refresh renews the auth service tokens behind token.
func (s *AuthService) Refresh(ctx context.Context, token string) (*model.Session, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.RefreshToken == "" {
		return s.sessions.Replace(ctx, token, *sess)
	}

	var g providerGrant
	body := map[string]string{"refresh_token": sess.RefreshToken}
	if err := s.provider.PostJSON(ctx, authTokenPath, url.Values{"grant_type": {"refresh_token"}}, body, &g); err != nil {
		if rejected(err) {
			_ = s.sessions.Revoke(ctx, token)
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	sess.AccessToken = g.AccessToken
	if g.RefreshToken != "" {
		sess.RefreshToken = g.RefreshToken
	}
	return s.sessions.Replace(ctx, token, *sess)
}

// SignOut revokes the gateway session. The auth service logout is best
// effort.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	if sess, err := s.sessions.Validate(ctx, token); err == nil {
		pctx := principal.WithPrincipal(ctx, &principal.Principal{UserID: sess.UserID, AccessToken: sess.AccessToken})
		if err := s.provider.PostJSON(pctx, authLogoutPath, nil, nil, nil); err != nil {
			s.logger.Warn("auth service logout failed", zap.String("user_id", sess.UserID), zap.Error(err))
		}
	}
	return s.sessions.Revoke(ctx, token)
}

func (s *AuthService) open(ctx context.Context, grant model.AuthGrant) (*SignInResult, error) {
	if grant.User.ID == "" || grant.AccessToken == "" {
		return nil, apierror.BadGateway("Auth service returned an incomplete session")
	}

	sess := model.Session{
		UserID:       grant.User.ID,
		Email:        grant.User.Email,
		DisplayName:  grant.User.DisplayName,
		IsAdmin:      s.isAdmin(grant.User.Email),
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
	}

	if s.profiles != nil {
		p, err := s.profiles.Ensure(ctx, sess)
		if err != nil {
			s.logger.Warn("failed to ensure profile", zap.String("user_id", sess.UserID), zap.Error(err))
		} else if p.DisplayName != "" {
			sess.DisplayName = p.DisplayName
		}
	}

	token, err := s.sessions.Create(ctx, sess)
	if err != nil {
		return nil, err
	}
	stored, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to read back session: %w", err)
	}
	return &SignInResult{Token: token, Session: stored}, nil
}

// ValidateSignUp returns one FieldError per invalid sign-up field.
func ValidateSignUp(req SignUpRequest) []apierror.FieldError {
	var details []apierror.FieldError

	if req.Email == "" {
		details = append(details, apierror.FieldError{Field: "email", Message: "Email is required"})
	} else if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email || !strings.Contains(req.Email[strings.LastIndex(req.Email, "@"):], ".") {
		details = append(details, apierror.FieldError{Field: "email", Message: "Enter a valid email address"})
	}

	switch {
	case utf8.RuneCountInString(req.Password) < minPasswordLength:
		details = append(details, apierror.FieldError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters", minPasswordLength)})
	case !strings.ContainsFunc(req.Password, unicode.IsDigit):
		details = append(details, apierror.FieldError{Field: "password", Message: "Password must contain a number"})
	}

	if req.ConfirmPassword != req.Password {
		details = append(details, apierror.FieldError{Field: "confirm_password", Message: "Passwords do not match"})
	}

	if utf8.RuneCountInString(req.DisplayName) > maxDisplayNameRune {
		details = append(details, apierror.FieldError{Field: "display_name", Message: fmt.Sprintf("Display name must be at most %d characters", maxDisplayNameRune)})
	}
	return details
}

// rejected reports whether err is the auth service refusing the grant.
func rejected(err error) bool {
	var ue *upstream.Error
	if !errors.As(err, &ue) || ue.Kind != upstream.KindApplication {
		return false
	}
	return ue.Status == http.StatusBadRequest || ue.Status == http.StatusUnauthorized
}
