package service

import (
	"context"
	"errors"
	"strings"

	"pricelens-gateway/internal/autocomplete"
	"pricelens-gateway/internal/listing"
	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/upstream"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyQuery is returned for a search without a query.
var ErrEmptyQuery = errors.New("search query is required")

// CatalogAPI is the slice of the backend API used for browsing.
type CatalogAPI interface {
	Categories(ctx context.Context) ([]model.Category, error)
	CategoryProducts(ctx context.Context, id model.ID, page upstream.PageQuery) (model.Paged[model.Product], error)
	Retailers(ctx context.Context) ([]model.Retailer, error)
	RetailerProducts(ctx context.Context, id model.ID, page upstream.PageQuery) (model.Paged[model.Product], error)
	Search(ctx context.Context, q upstream.SearchQuery) (model.Paged[model.Product], error)
	Trending(ctx context.Context, limit int) ([]model.Product, error)
	Recommendations(ctx context.Context) ([]model.Product, error)
	HomepageTrending(ctx context.Context) ([]model.Product, error)
	PriceDrops(ctx context.Context) ([]model.Product, error)
	NewArrivals(ctx context.Context) ([]model.Product, error)
	MarketSummary(ctx context.Context) (model.MarketSummary, error)
}

// CatalogService renders product listings from backend data.
type CatalogService struct {
	api      CatalogAPI
	products *listing.Pipeline[model.Product]
	suggest  *autocomplete.Debouncer
	logger   *zap.Logger
}

// NewCatalogService creates a catalog service. suggest may be nil, which
// disables autocomplete.
func NewCatalogService(api CatalogAPI, suggest *autocomplete.Debouncer, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		api:      api,
		products: listing.NewProducts(),
		suggest:  suggest,
		logger:   logger.Named("catalog"),
	}
}

// Categories returns every category.
func (s *CatalogService) Categories(ctx context.Context) ([]model.Category, error) {
	return s.api.Categories(ctx)
}

// Retailers returns every retailer.
func (s *CatalogService) Retailers(ctx context.Context) ([]model.Retailer, error) {
	return s.api.Retailers(ctx)
}

// CategoryProducts renders one server-paginated page of a category.
func (s *CatalogService) CategoryProducts(ctx context.Context, id model.ID, f listing.FilterState) (listing.Result[model.Product], error) {
	page, err := s.api.CategoryProducts(ctx, id, pageQuery(f))
	if err != nil {
		return listing.Result[model.Product]{}, err
	}
	return s.serverPage(page, f), nil
}

// RetailerProducts renders one server-paginated page of a retailer.
func (s *CatalogService) RetailerProducts(ctx context.Context, id model.ID, f listing.FilterState) (listing.Result[model.Product], error) {
	page, err := s.api.RetailerProducts(ctx, id, pageQuery(f))
	if err != nil {
		return listing.Result[model.Product]{}, err
	}
	return s.serverPage(page, f), nil
}

// Search renders one server-paginated page of search results.
func (s *CatalogService) Search(ctx context.Context, query string, f listing.FilterState) (listing.Result[model.Product], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return listing.Result[model.Product]{}, ErrEmptyQuery
	}
	page, err := s.api.Search(ctx, upstream.SearchQuery{
		Query:     query,
		Category:  f.Category,
		Retailer:  f.Retailer,
		Sort:      string(f.SortBy),
		PageQuery: pageQuery(f),
	})
	if err != nil {
		return listing.Result[model.Product]{}, err
	}
	return s.serverPage(page, f), nil
}

// PriceDrops renders the whole price-drop feed.
func (s *CatalogService) PriceDrops(ctx context.Context, f listing.FilterState) (listing.Result[model.Product], error) {
	items, err := s.api.PriceDrops(ctx)
	if err != nil {
		return listing.Result[model.Product]{}, err
	}
	return s.clientList(items, f), nil
}

// NewArrivals renders the whole new-arrival feed.
func (s *CatalogService) NewArrivals(ctx context.Context, f listing.FilterState) (listing.Result[model.Product], error) {
	items, err := s.api.NewArrivals(ctx)
	if err != nil {
		return listing.Result[model.Product]{}, err
	}
	return s.clientList(items, f), nil
}

// Trending renders the trending feed.
func (s *CatalogService) Trending(ctx context.Context, limit int, f listing.FilterState) (listing.Result[model.Product], error) {
	items, err := s.api.Trending(ctx, limit)
	if err != nil {
		return listing.Result[model.Product]{}, err
	}
	return s.clientList(items, f), nil
}

// Suggest returns debounced autocomplete suggestions for client.
func (s *CatalogService) Suggest(ctx context.Context, client, query string) ([]string, error) {
	if s.suggest == nil {
		return []string{}, nil
	}
	return s.suggest.Suggest(ctx, client, query)
}

// PendingSuggestions returns the number of clients with a query in progress.
func (s *CatalogService) PendingSuggestions() int {
	if s.suggest == nil {
		return 0
	}
	return s.suggest.Pending()
}

// Home loads the landing page sections concurrently. The market summary is
// optional; the product sections are not.
func (s *CatalogService) Home(ctx context.Context) (*model.HomeFeed, error) {
	var (
		feed   model.HomeFeed
		market model.MarketSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.api.Recommendations(gctx)
		feed.Recommendations = items
		return err
	})
	g.Go(func() error {
		items, err := s.api.HomepageTrending(gctx)
		feed.Trending = items
		return err
	})
	g.Go(func() error {
		m, err := s.api.MarketSummary(gctx)
		if err != nil {
			if gctx.Err() == nil {
				s.logger.Warn("market summary unavailable", zap.Error(err))
			}
			return nil
		}
		market = m
		feed.Market = &market
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if feed.Recommendations == nil {
		feed.Recommendations = []model.Product{}
	}
	if feed.Trending == nil {
		feed.Trending = []model.Product{}
	}
	return &feed, nil
}

func (s *CatalogService) serverPage(page model.Paged[model.Product], f listing.FilterState) listing.Result[model.Product] {
	f.Mode = listing.ModeServer
	if page.Page > 0 {
		f.Page = page.Page
	}
	if page.PerPage > 0 {
		f.PerPage = page.PerPage
	}
	return s.products.Run(page.Items, f, page.Total)
}

func (s *CatalogService) clientList(items []model.Product, f listing.FilterState) listing.Result[model.Product] {
	f.Mode = listing.ModeClient
	return s.products.Run(items, f, 0)
}

func pageQuery(f listing.FilterState) upstream.PageQuery {
	return upstream.PageQuery{Page: f.Page, PerPage: f.PerPage}
}
