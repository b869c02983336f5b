package service

import (
	"context"
	"errors"
	"testing"

	"pricelens-gateway/internal/autocomplete"
	"pricelens-gateway/internal/listing"
	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	products   []model.Product
	total      int
	lastPage   upstream.PageQuery
	lastSearch upstream.SearchQuery
	marketErr  error
	recErr     error
}

func (f *fakeCatalog) Categories(ctx context.Context) ([]model.Category, error) {
	return []model.Category{{ID: "1", Name: "Phones"}}, nil
}

func (f *fakeCatalog) CategoryProducts(ctx context.Context, id model.ID, page upstream.PageQuery) (model.Paged[model.Product], error) {
	f.lastPage = page
	return model.Paged[model.Product]{Items: f.products, Total: f.total, Page: page.Page, PerPage: page.PerPage}, nil
}

func (f *fakeCatalog) Retailers(ctx context.Context) ([]model.Retailer, error) {
	return []model.Retailer{{ID: "r1", Name: "Shop"}}, nil
}

func (f *fakeCatalog) RetailerProducts(ctx context.Context, id model.ID, page upstream.PageQuery) (model.Paged[model.Product], error) {
	return f.CategoryProducts(ctx, id, page)
}

func (f *fakeCatalog) Search(ctx context.Context, q upstream.SearchQuery) (model.Paged[model.Product], error) {
	f.lastSearch = q
	return f.CategoryProducts(ctx, "", q.PageQuery)
}

func (f *fakeCatalog) Trending(ctx context.Context, limit int) ([]model.Product, error) {
	return f.products, nil
}

func (f *fakeCatalog) Recommendations(ctx context.Context) ([]model.Product, error) {
	if f.recErr != nil {
		return nil, f.recErr
	}
	return f.products[:1], nil
}

func (f *fakeCatalog) HomepageTrending(ctx context.Context) ([]model.Product, error) {
	return nil, nil
}

func (f *fakeCatalog) PriceDrops(ctx context.Context) ([]model.Product, error) {
	return f.products, nil
}

func (f *fakeCatalog) NewArrivals(ctx context.Context) ([]model.Product, error) {
	return f.products, nil
}

func (f *fakeCatalog) MarketSummary(ctx context.Context) (model.MarketSummary, error) {
	if f.marketErr != nil {
		return model.MarketSummary{}, f.marketErr
	}
	return model.MarketSummary{TotalProducts: 42}, nil
}

func (f *fakeCatalog) Autocomplete(ctx context.Context, query string) ([]string, error) {
	return []string{query + "hone"}, nil
}

func catalogProducts() []model.Product {
	return []model.Product{
		{ID: "1", Name: "Phone", Price: 300, InStock: true},
		{ID: "2", Name: "Tablet", Price: 500, InStock: false},
		{ID: "3", Name: "Watch", Price: 200, InStock: true},
	}
}

func TestCatalogService_ServerPaginatedListing(t *testing.T) {
	api := &fakeCatalog{products: catalogProducts(), total: 30}
	s := NewCatalogService(api, nil, nil)

	res, err := s.CategoryProducts(context.Background(), "7", listing.FilterState{
		Page: 2, PerPage: 3, SortBy: listing.SortPriceAsc, Mode: listing.ModeClient,
	})
	require.NoError(t, err)
	assert.Equal(t, upstream.PageQuery{Page: 2, PerPage: 3}, api.lastPage)
	assert.Equal(t, []model.ID{"3", "1", "2"}, productIDs(res.Items))
	assert.Equal(t, 30, res.Total)
	assert.True(t, res.HasMore)
	assert.Equal(t, 2, res.Page)
}

func TestCatalogService_ClientListing(t *testing.T) {
	s := NewCatalogService(&fakeCatalog{products: catalogProducts()}, nil, nil)

	res, err := s.PriceDrops(context.Background(), listing.FilterState{Stock: listing.StockIn, Page: 3, PerPage: 1})
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"1", "3"}, productIDs(res.Items))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Page)
	assert.False(t, res.HasMore)
}

func TestCatalogService_Search(t *testing.T) {
	api := &fakeCatalog{products: catalogProducts(), total: 3}
	s := NewCatalogService(api, nil, nil)

	_, err := s.Search(context.Background(), "   ", listing.FilterState{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = s.Search(context.Background(), " phone ", listing.FilterState{Category: "Phones", SortBy: listing.SortNameAsc, Page: 1, PerPage: 24})
	require.NoError(t, err)
	assert.Equal(t, "phone", api.lastSearch.Query)
	assert.Equal(t, "Phones", api.lastSearch.Category)
	assert.Equal(t, "name_asc", api.lastSearch.Sort)
}

func TestCatalogService_Home(t *testing.T) {
	t.Run("market optional", func(t *testing.T) {
		s := NewCatalogService(&fakeCatalog{products: catalogProducts(), marketErr: errors.New("down")}, nil, nil)
		feed, err := s.Home(context.Background())
		require.NoError(t, err)
		assert.Len(t, feed.Recommendations, 1)
		assert.NotNil(t, feed.Trending)
		assert.Nil(t, feed.Market)
	})

	t.Run("all sections", func(t *testing.T) {
		s := NewCatalogService(&fakeCatalog{products: catalogProducts()}, nil, nil)
		feed, err := s.Home(context.Background())
		require.NoError(t, err)
		require.NotNil(t, feed.Market)
		assert.Equal(t, 42, feed.Market.TotalProducts)
	})

	t.Run("recommendations required", func(t *testing.T) {
		boom := errors.New("boom")
		s := NewCatalogService(&fakeCatalog{products: catalogProducts(), recErr: boom}, nil, nil)
		_, err := s.Home(context.Background())
		assert.ErrorIs(t, err, boom)
	})
}

func TestCatalogService_Suggest(t *testing.T) {
	api := &fakeCatalog{}
	s := NewCatalogService(api, autocomplete.New(api, autocomplete.Options{Delay: 1}), nil)

	got, err := s.Suggest(context.Background(), "u1", "ip")
	require.NoError(t, err)
	assert.Equal(t, []string{"iphone"}, got)

	got, err = NewCatalogService(api, nil, nil).Suggest(context.Background(), "u1", "ip")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func productIDs(items []model.Product) []model.ID {
	out := make([]model.ID, len(items))
	for i, p := range items {
		out[i] = p.ID
	}
	return out
}
