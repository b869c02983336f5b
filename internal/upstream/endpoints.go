package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"pricelens-gateway/internal/model"
)

const apiPrefix = "/api/v1"

// PageQuery is a server-side pagination request.
type PageQuery struct {
	Page    int
	PerPage int
}

func (q PageQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

// SearchQuery is a product search request.
type SearchQuery struct {
	Query    string
	Category string
	Retailer string
	Sort     string
	PageQuery
}

func (c *Client) productPage(ctx context.Context, path string, q url.Values, page PageQuery) (model.Paged[model.Product], error) {
	return c.products(ctx, call{method: http.MethodGet, path: path, query: q}, page)
}

func (c *Client) products(ctx context.Context, cl call, page PageQuery) (model.Paged[model.Product], error) {
	path := cl.path
	raw, err := c.fetch(ctx, cl)
	if err != nil {
		return model.Paged[model.Product]{}, err
	}
	items, meta, err := decodeList[model.Product](raw)
	if err != nil {
		return model.Paged[model.Product]{}, decodeError(path, err)
	}

	now := c.now()
	for i := range items {
		items[i].Normalize(now)
	}

	out := model.Paged[model.Product]{Items: items, Total: meta.Total, Page: meta.Page, PerPage: meta.PerPage}
	if out.Page == 0 {
		out.Page = max(page.Page, 1)
	}
	if out.PerPage == 0 {
		out.PerPage = page.PerPage
	}
	return out, nil
}

func (c *Client) productList(ctx context.Context, path string, q url.Values) ([]model.Product, error) {
	page, err := c.productPage(ctx, path, q, PageQuery{})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func decodeError(path string, err error) *Error {
	return &Error{Kind: KindDecode, Method: http.MethodGet, Path: path, Status: http.StatusBadGateway,
		Message: "The server returned an unexpected response.", Err: err}
}

// ListAnomalies returns one page of anomalies awaiting review. Never cached.
func (c *Client) ListAnomalies(ctx context.Context, page PageQuery) (model.Paged[model.Anomaly], error) {
	path := apiPrefix + "/admin/anomalies"
	raw, err := c.fetch(ctx, call{method: http.MethodGet, path: path, query: page.values(), noCache: true})
	if err != nil {
		return model.Paged[model.Anomaly]{}, err
	}
	items, meta, err := decodeList[model.Anomaly](raw)
	if err != nil {
		return model.Paged[model.Anomaly]{}, decodeError(path, err)
	}
	for i := range items {
		items[i].Normalize()
	}
	out := model.Paged[model.Anomaly]{Items: items, Total: meta.Total, Page: meta.Page, PerPage: meta.PerPage}
	if out.Page == 0 {
		out.Page = max(page.Page, 1)
	}
	if out.PerPage == 0 {
		out.PerPage = page.PerPage
	}
	return out, nil
}

// AnomalyPriceHistory returns the price history behind one anomaly.
func (c *Client) AnomalyPriceHistory(ctx context.Context, id model.ID) ([]model.PricePoint, error) {
	return c.history(ctx, apiPrefix+"/admin/anomalies/"+url.PathEscape(id.String())+"/price-history", nil, true)
}

// ResolveAnomaly commits a resolution. It is a single best-effort POST.
func (c *Client) ResolveAnomaly(ctx context.Context, id model.ID, resolution model.Resolution) error {
	return c.doJSON(ctx, call{
		method: http.MethodPost,
		path:   apiPrefix + "/admin/anomalies/" + url.PathEscape(id.String()) + "/resolve",
		body:   map[string]string{"resolution": string(resolution)},
	}, nil)
}

// Categories lists all categories.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	path := apiPrefix + "/categories"
	raw, err := c.fetch(ctx, call{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	items, _, err := decodeList[model.Category](raw)
	if err != nil {
		return nil, decodeError(path, err)
	}
	return items, nil
}

// CategoryProducts returns one page of products in a category.
func (c *Client) CategoryProducts(ctx context.Context, id model.ID, page PageQuery) (model.Paged[model.Product], error) {
	return c.productPage(ctx, apiPrefix+"/categories/"+url.PathEscape(id.String())+"/products", page.values(), page)
}

// Retailers lists all retailers.
func (c *Client) Retailers(ctx context.Context) ([]model.Retailer, error) {
	path := apiPrefix + "/retailers"
	raw, err := c.fetch(ctx, call{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	items, _, err := decodeList[model.Retailer](raw)
	if err != nil {
		return nil, decodeError(path, err)
	}
	return items, nil
}

// RetailerProducts returns one page of a retailer's products.
func (c *Client) RetailerProducts(ctx context.Context, id model.ID, page PageQuery) (model.Paged[model.Product], error) {
	return c.productPage(ctx, apiPrefix+"/retailers/"+url.PathEscape(id.String())+"/products", page.values(), page)
}

// Search returns one page of search results.
func (c *Client) Search(ctx context.Context, q SearchQuery) (model.Paged[model.Product], error) {
	v := q.values()
	v.Set("q", q.Query)
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Retailer != "" {
		v.Set("retailer", q.Retailer)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return c.productPage(ctx, apiPrefix+"/search", v, q.PageQuery)
}

// Autocomplete returns suggestions for a partial query.
func (c *Client) Autocomplete(ctx context.Context, query string) ([]string, error) {
	path := apiPrefix + "/search/autocomplete"
	raw, err := c.fetch(ctx, call{method: http.MethodGet, path: path, query: url.Values{"q": {query}}})
	if err != nil {
		return nil, err
	}
	out, err := decodeSuggestions(raw)
	if err != nil {
		return nil, decodeError(path, err)
	}
	return out, nil
}

// Trending returns the trending products feed.
func (c *Client) Trending(ctx context.Context, limit int) ([]model.Product, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	return c.productList(ctx, apiPrefix+"/trending", v)
}

// Recommendations returns the caller's home page recommendations. The
// feed is personalised, so it is cached per user.
func (c *Client) Recommendations(ctx context.Context) ([]model.Product, error) {
	page, err := c.products(ctx, call{method: http.MethodGet, path: apiPrefix + "/home/recommendations", perUser: true}, PageQuery{})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// HomepageTrending returns the home page trending strip.
func (c *Client) HomepageTrending(ctx context.Context) ([]model.Product, error) {
	return c.productList(ctx, apiPrefix+"/home/homepage-trending", nil)
}

// PriceDrops returns the full price-drop feed.
func (c *Client) PriceDrops(ctx context.Context) ([]model.Product, error) {
	return c.productList(ctx, apiPrefix+"/deals/price-drops", nil)
}

// NewArrivals returns the full new-arrival feed.
func (c *Client) NewArrivals(ctx context.Context) ([]model.Product, error) {
	return c.productList(ctx, apiPrefix+"/deals/new-arrivals", nil)
}

// ProductPriceHistory returns a product's price history over days.
func (c *Client) ProductPriceHistory(ctx context.Context, id model.ID, days int) ([]model.PricePoint, error) {
	v := url.Values{}
	if days > 0 {
		v.Set("days", strconv.Itoa(days))
	}
	return c.history(ctx, apiPrefix+"/products/"+url.PathEscape(id.String())+"/price-history", v, false)
}

// ProductForecast returns a product's price forecast.
func (c *Client) ProductForecast(ctx context.Context, id model.ID) (model.Forecast, error) {
	path := apiPrefix + "/products/" + url.PathEscape(id.String()) + "/price-forecast"
	raw, err := c.fetch(ctx, call{method: http.MethodGet, path: path})
	if err != nil {
		return model.Forecast{}, err
	}
	var f model.Forecast
	if err := decodeObject(raw, &f); err != nil {
		return model.Forecast{}, decodeError(path, err)
	}
	if f.ProductID == "" {
		f.ProductID = id
	}
	f.Normalize()
	return f, nil
}

// AnalyticsPriceHistory returns aggregate price history, optionally scoped to
// a category.
func (c *Client) AnalyticsPriceHistory(ctx context.Context, category string, days int) ([]model.PricePoint, error) {
	v := url.Values{}
	if category != "" {
		v.Set("category", category)
	}
	if days > 0 {
		v.Set("days", strconv.Itoa(days))
	}
	return c.history(ctx, apiPrefix+"/analytics/price-history", v, false)
}

// MarketSummary returns the aggregate market summary.
func (c *Client) MarketSummary(ctx context.Context) (model.MarketSummary, error) {
	path := apiPrefix + "/analytics/market-summary"
	raw, err := c.fetch(ctx, call{method: http.MethodGet, path: path})
	if err != nil {
		return model.MarketSummary{}, err
	}
	var s model.MarketSummary
	if err := decodeObject(raw, &s); err != nil {
		return model.MarketSummary{}, decodeError(path, err)
	}
	return s, nil
}

// Ping checks the backend is reachable. It bypasses cache and retries.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.once(ctx, call{method: http.MethodGet, path: "/health"}, c.resolve("/health", nil), nil, "")
	if err != nil {
		return err
	}
	return nil
}

func (c *Client) history(ctx context.Context, path string, q url.Values, noCache bool) ([]model.PricePoint, error) {
	raw, err := c.fetch(ctx, call{method: http.MethodGet, path: path, query: q, noCache: noCache})
	if err != nil {
		return nil, err
	}
	points, _, err := decodeList[model.PricePoint](raw)
	if err != nil {
		// Some history endpoints answer {"history": [...]}.
		var env struct {
			History []model.PricePoint `json:"history"`
		}
		if err2 := decodeObject(raw, &env); err2 != nil || env.History == nil {
			return nil, decodeError(path, err)
		}
		points = env.History
	}
	return points, nil
}
