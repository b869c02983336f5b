package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pricelens-gateway/internal/autocomplete"
	"pricelens-gateway/internal/cache"
	"pricelens-gateway/internal/config"
	"pricelens-gateway/internal/handler"
	"pricelens-gateway/internal/middleware"
	"pricelens-gateway/internal/repository"
	"pricelens-gateway/internal/review"
	"pricelens-gateway/internal/router"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/internal/upstream"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runServe(cmd *cobra.Command) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting gateway",
		zap.String("version", cfg.App.Version),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)

	store, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	if audit != nil {
		defer audit.Close()
		logger.Info("review audit log initialized", zap.String("type", cfg.ReviewDB.Type))
	}

	profileDB, profileRepo := openProfiles(cmd.Context(), cfg, logger)
	if profileDB != nil {
		defer profileDB.Close()
	}

	api, err := upstream.New(upstream.OptionsFromConfig(cfg.Upstream, store, cfg.Cache.TTL, logger))
	if err != nil {
		return err
	}
	provider, err := upstream.New(upstream.Options{
		BaseURL: cfg.Auth.ProviderURL,
		Timeout: cfg.Upstream.Timeout,
		Retry:   upstream.RetryPolicy{Attempts: 1},
		Headers: map[string]string{"apikey": cfg.Auth.AnonKey},
		Logger:  logger.Named("auth_provider"),
	})
	if err != nil {
		return err
	}

	// Services
	sessions := service.NewSessionService(store, cfg.Auth.SessionTTL, logger)
	profiles := service.NewProfileService(profileRepo, logger)
	auth := service.NewAuthService(provider, sessions, profiles, cfg.Auth.IsAdminEmail, logger)
	suggest := autocomplete.New(api, autocomplete.Options{
		MinLength: cfg.Autocomplete.MinLength,
		Delay:     cfg.Autocomplete.Delay,
		Logger:    logger,
	})
	catalog := service.NewCatalogService(api, suggest, logger)
	analytics := service.NewAnalyticsService(api)
	reviews := service.NewReviewService(api, audit, service.ReviewConfig{
		Policy: review.Policy{
			RollbackOnFailure: cfg.Review.RollbackOnFailure,
			RequestTimeout:    cfg.Review.RequestTimeout,
		},
		PageSize: cfg.Review.PageSize,
		IdleTTL:  cfg.Review.WorkspaceIdleTTL,
	}, logger)

	cleanup := service.NewCleanupScheduler(audit, reviews, service.CleanupConfig{
		Retention: cfg.Review.AuditRetention,
		Interval:  cfg.Review.AuditPruneEvery,
	}, logger)
	cleanup.Start()

	r := router.New(router.Config{
		HealthHandler:    handler.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, api),
		AuthHandler:      handler.NewAuthHandler(auth, logger),
		ProfileHandler:   handler.NewProfileHandler(profiles, logger),
		CatalogHandler:   handler.NewCatalogHandler(catalog, logger),
		AnalyticsHandler: handler.NewAnalyticsHandler(analytics, logger),
		ReviewHandler:    handler.NewReviewHandler(reviews, logger),
		AdminHandler:     handler.NewAdminHandler(store, audit, cfg.ReviewDB.Type, reviews, catalog),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			Sessions:    sessions,
			PublicPaths: router.PublicPaths,
			Logger:      logger,
		}),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		cleanup.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	cleanup.Stop()

	// Let in-flight resolutions settle so their audit rows are written.
	settled := make(chan struct{})
	go func() {
		reviews.Close()
		close(settled)
	}()
	select {
	case <-settled:
	case <-ctx.Done():
		logger.Warn("review resolutions still in flight at shutdown")
	}

	logger.Info("server stopped")
	return nil
}

func runPruneAudit(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	if audit == nil {
		return errors.New("review audit log is not configured")
	}
	defer audit.Close()

	cleanup := service.NewCleanupScheduler(audit, nil, service.CleanupConfig{Retention: cfg.Review.AuditRetention}, logger)
	res, err := cleanup.RunNow(cmd.Context())
	if err != nil {
		return fmt.Errorf("prune audit log: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d audit entries older than %s\n", res.AuditDeleted, cfg.Review.AuditRetention)
	return nil
}

func openCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	if strings.EqualFold(cfg.Cache.Type, "redis") {
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	logger.Info("using in-memory cache")
	return cache.NewMemoryCache(), nil
}

// openAudit returns the configured audit repository, or nil when disabled.
func openAudit(cfg *config.Config) (repository.AuditRepository, error) {
	switch strings.ToLower(cfg.ReviewDB.Type) {
	case "", "none", "disabled":
		return nil, nil
	case "postgres", "postgresql":
		repo, err := repository.NewPostgresAuditRepository(cfg.ReviewDB.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return repo, nil
	default: // sqlite
		if cfg.ReviewDB.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.ReviewDB.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create audit directory: %w", err)
			}
		}
		repo, err := repository.NewSQLiteAuditRepository(cfg.ReviewDB.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		return repo, nil
	}
}

// openProfiles connects to MySQL. Profiles are optional: on failure the
// gateway serves default profiles and rejects updates.
func openProfiles(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, repository.ProfileRepository) {
	if !cfg.Database.Enabled {
		return nil, nil
	}
	db, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		logger.Warn("mysql connection failed", zap.Error(err))
		return nil, nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		logger.Warn("mysql ping failed, profiles disabled", zap.Error(err))
		db.Close()
		return nil, nil
	}

	repo := repository.NewMySQLProfileRepository(db)
	if err := repo.Migrate(pctx); err != nil {
		logger.Warn("profile migration failed, profiles disabled", zap.Error(err))
		db.Close()
		return nil, nil
	}
	logger.Info("mysql profile repository initialized")
	return db, repo
}

// parseRetention accepts a Go duration or a whole number of days ("30d").
func parseRetention(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid retention %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid retention %q", s)
	}
	return d, nil
}
