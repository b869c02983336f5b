package service

import (
	"context"
	"testing"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/pkg/apierror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestProfileService_GetDefaults(t *testing.T) {
	s := NewProfileService(newFakeProfiles(), nil)
	p, err := s.Get(context.Background(), &principal.Principal{UserID: "u1", Email: "sam@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "sam", p.DisplayName)
	assert.Equal(t, DefaultCurrency, p.PreferredCurrency)
	assert.Zero(t, p.AlertThreshold)
}

func TestProfileService_Update(t *testing.T) {
	repo := newFakeProfiles()
	s := NewProfileService(repo, nil)
	caller := &principal.Principal{UserID: "u1", Email: "sam@example.com", DisplayName: "Sam"}

	p, err := s.Update(context.Background(), caller, model.ProfileUpdate{
		PreferredCurrency: ptr(" eur "),
		AlertThreshold:    ptr(15.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.PreferredCurrency)
	assert.Equal(t, 15.0, p.AlertThreshold)
	assert.Equal(t, "Sam", p.DisplayName)

	p, err = s.Update(context.Background(), caller, model.ProfileUpdate{DisplayName: ptr("Samantha")})
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.PreferredCurrency, "untouched fields survive")
	assert.Equal(t, "Samantha", p.DisplayName)
	assert.Equal(t, 2, repo.saves)
}

func TestProfileService_UpdateValidation(t *testing.T) {
	s := NewProfileService(newFakeProfiles(), nil)
	_, err := s.Update(context.Background(), &principal.Principal{UserID: "u1"}, model.ProfileUpdate{
		DisplayName:       ptr("  "),
		PreferredCurrency: ptr("EU1"),
		AlertThreshold:    ptr(-1.0),
	})
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Details, 3)
}

func TestProfileService_Disabled(t *testing.T) {
	s := NewProfileService(nil, nil)
	p, err := s.Get(context.Background(), &principal.Principal{UserID: "u1", DisplayName: "Kim"})
	require.NoError(t, err)
	assert.Equal(t, "Kim", p.DisplayName)

	_, err = s.Update(context.Background(), &principal.Principal{UserID: "u1"}, model.ProfileUpdate{})
	assert.ErrorIs(t, err, ErrProfilesDisabled)
}
