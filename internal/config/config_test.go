package config_test

import (
	"testing"
	"time"

	"pricelens-gateway/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "memory", cfg.Cache.Type)
		assert.Equal(t, "sqlite", cfg.ReviewDB.Type)
		assert.Equal(t, 300*time.Millisecond, cfg.Autocomplete.Delay)
		assert.Equal(t, 2, cfg.Autocomplete.MinLength)
		assert.Equal(t, 3, cfg.Upstream.RetryAttempts)
		assert.False(t, cfg.Upstream.RetryMutations)
		assert.False(t, cfg.Review.RollbackOnFailure)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "9090")
		t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com")
		t.Setenv("REVIEW_ROLLBACK_ON_FAILURE", "true")
		t.Setenv("AUTH_ADMIN_EMAILS", "ops@example.com, root@example.com")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:9090", cfg.Server.Address())
		assert.Equal(t, "https://api.example.com", cfg.Upstream.BaseURL)
		assert.True(t, cfg.Review.RollbackOnFailure)
		assert.True(t, cfg.Auth.IsAdminEmail("ROOT@example.com"))
		assert.False(t, cfg.Auth.IsAdminEmail("user@example.com"))
	})

	t.Run("invalid min length", func(t *testing.T) {
		t.Setenv("AUTOCOMPLETE_MIN_LENGTH", "0")

		_, err := config.Load()
		assert.Error(t, err)
	})
}

func TestDSNs(t *testing.T) {
	db := config.DatabaseConfig{Host: "db", Port: 3306, Name: "pl", User: "u", Password: "p"}
	assert.Equal(t, "u:p@tcp(db:3306)/pl?parseTime=true", db.DSN())

	rdb := config.ReviewDBConfig{Host: "pg", Port: 5432, Name: "pl", User: "u", Password: "p", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@pg:5432/pl?sslmode=disable", rdb.PostgresDSN())
}
