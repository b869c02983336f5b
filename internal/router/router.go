package router

import (
	"net/http"

	"pricelens-gateway/internal/handler"
	"pricelens-gateway/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// PublicPaths are served without a session.
var PublicPaths = []string{
	"/api/v1/health",
	"/api/v1/ready",
	"/api/v1/auth/signin",
	"/api/v1/auth/signup",
}

// Config holds the configuration for creating a router.
type Config struct {
	HealthHandler    *handler.HealthHandler
	AuthHandler      *handler.AuthHandler
	ProfileHandler   *handler.ProfileHandler
	CatalogHandler   *handler.CatalogHandler
	AnalyticsHandler *handler.AnalyticsHandler
	ReviewHandler    *handler.ReviewHandler
	AdminHandler     *handler.AdminHandler
	AuthMiddleware   func(http.Handler) http.Handler
	AllowedOrigins   []string
	Logger           *zap.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5, "application/json"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.SessionTokenHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.HealthHandler != nil {
		r.Get("/api/status", cfg.HealthHandler.Status)
	}

	// AUTHENTICATED routes; the auth middleware lets PublicPaths through
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.HealthHandler != nil {
				r.Get("/health", cfg.HealthHandler.Health)
				r.Get("/ready", cfg.HealthHandler.Ready)
			}

			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/signin", cfg.AuthHandler.SignIn)
					r.Post("/signup", cfg.AuthHandler.SignUp)
					r.Post("/signout", cfg.AuthHandler.SignOut)
					r.Post("/refresh", cfg.AuthHandler.Refresh)
				})
				r.Get("/me", cfg.AuthHandler.Me)
			}

			if cfg.ProfileHandler != nil {
				r.Get("/profile", cfg.ProfileHandler.Get)
				r.Put("/profile", cfg.ProfileHandler.Update)
			}

			if h := cfg.CatalogHandler; h != nil {
				r.Get("/home", h.Home)
				r.Get("/categories", h.Categories)
				r.Get("/categories/{id}/products", h.CategoryProducts)
				r.Get("/retailers", h.Retailers)
				r.Get("/retailers/{id}/products", h.RetailerProducts)
				r.Get("/search", h.Search)
				r.Get("/search/autocomplete", h.Autocomplete)
				r.Get("/trending", h.Trending)
				r.Route("/deals", func(r chi.Router) {
					r.Get("/price-drops", h.PriceDrops)
					r.Get("/new-arrivals", h.NewArrivals)
				})
			}

			if h := cfg.AnalyticsHandler; h != nil {
				r.Get("/products/{id}/price-history", h.ProductPriceHistory)
				r.Get("/products/{id}/price-forecast", h.ProductForecast)
				r.Get("/analytics/price-history", h.PriceHistory)
				r.Get("/analytics/market-summary", h.MarketSummary)
			}

			// Admin endpoints
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				if cfg.AdminHandler != nil {
					r.Get("/stats", cfg.AdminHandler.GetStats)
				}

				if h := cfg.ReviewHandler; h != nil {
					r.Route("/review", func(r chi.Router) {
						r.Get("/anomalies", h.List)
						r.Get("/anomalies/{id}/price-history", h.PriceHistory)
						r.Post("/anomalies/{id}/confirm", h.Confirm)
						r.Post("/cancel", h.Cancel)
						r.Post("/commit", h.Commit)
						r.Post("/dismiss", h.Dismiss)
						r.Get("/state", h.State)
						r.Get("/audit", h.Audit)
					})
				}
			})
		})
	})

	return r
}
