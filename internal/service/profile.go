package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/internal/repository"
	"pricelens-gateway/pkg/apierror"

	"go.uber.org/zap"
)

// DefaultCurrency is the preferred currency of a new profile.
const DefaultCurrency = "USD"

// ErrProfilesDisabled is returned when no profile store is configured.
var ErrProfilesDisabled = errors.New("profile storage is disabled")

// ProfileService manages per-user preferences.
type ProfileService struct {
	repo   repository.ProfileRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewProfileService creates a profile service. repo may be nil, in which case
// reads return defaults and writes fail with ErrProfilesDisabled.
func NewProfileService(repo repository.ProfileRepository, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, logger: logger.Named("profile"), now: time.Now}
}

// Get returns the caller's profile, or a default one if none is stored.
func (s *ProfileService) Get(ctx context.Context, p *principal.Principal) (*model.Profile, error) {
	if s.repo == nil {
		return s.defaults(p.UserID, p.Email, p.DisplayName), nil
	}
	profile, err := s.repo.GetProfile(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.defaults(p.UserID, p.Email, p.DisplayName), nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Update applies upd to the caller's profile and stores it.
func (s *ProfileService) Update(ctx context.Context, p *principal.Principal, upd model.ProfileUpdate) (*model.Profile, error) {
	if s.repo == nil {
		return nil, ErrProfilesDisabled
	}
	if details := ValidateProfileUpdate(upd); len(details) > 0 {
		return nil, apierror.ValidationError("Please correct the highlighted fields", details...)
	}

	profile, err := s.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		profile.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.PreferredCurrency != nil {
		profile.PreferredCurrency = strings.ToUpper(strings.TrimSpace(*upd.PreferredCurrency))
	}
	if upd.AlertThreshold != nil {
		profile.AlertThreshold = *upd.AlertThreshold
	}
	profile.UpdatedAt = s.now()

	if err := s.repo.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	s.logger.Info("profile updated", zap.String("user_id", profile.UserID))
	return profile, nil
}

// Ensure returns the stored profile for sess, creating it on first sign-in.
func (s *ProfileService) Ensure(ctx context.Context, sess model.Session) (*model.Profile, error) {
	if s.repo == nil {
		return s.defaults(sess.UserID, sess.Email, sess.DisplayName), nil
	}
	profile, err := s.repo.GetProfile(ctx, sess.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	profile = s.defaults(sess.UserID, sess.Email, sess.DisplayName)
	if err := s.repo.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	s.logger.Info("profile created", zap.String("user_id", profile.UserID))
	return profile, nil
}

func (s *ProfileService) defaults(userID, email, displayName string) *model.Profile {
	now := s.now()
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}
	return &model.Profile{
		UserID:            userID,
		Email:             email,
		DisplayName:       displayName,
		PreferredCurrency: DefaultCurrency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ValidateProfileUpdate returns one FieldError per invalid field of upd.
func ValidateProfileUpdate(upd model.ProfileUpdate) []apierror.FieldError {
	var details []apierror.FieldError
	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > maxDisplayNameRune {
			details = append(details, apierror.FieldError{Field: "display_name", Message: fmt.Sprintf("Display name must be 1 to %d characters", maxDisplayNameRune)})
		}
	}
	if upd.PreferredCurrency != nil && !isCurrencyCode(strings.TrimSpace(*upd.PreferredCurrency)) {
		details = append(details, apierror.FieldError{Field: "preferred_currency", Message: "Currency must be a 3-letter ISO code"})
	}
	if upd.AlertThreshold != nil && (*upd.AlertThreshold < 0 || *upd.AlertThreshold > 100) {
		details = append(details, apierror.FieldError{Field: "alert_threshold", Message: "Alert threshold must be between 0 and 100"})
	}
	return details
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
