package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pricelens-gateway/internal/cache"
	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/pkg/uid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, mutate func(*Options)) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		Retry:   RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c, srv
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestClient_RetriesIdempotentGET(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"id": 1, "name": " Laptop ", "price": 80, "old_price": 100}]`))
	}), nil)

	items, err := c.Trending(context.Background(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	require.Len(t, items, 1)
	assert.Equal(t, model.ID("1"), items[0].ID)
	assert.Equal(t, "Laptop", items[0].Name)
	assert.Equal(t, "USD", items[0].Currency)
	assert.InDelta(t, -20.0, items[0].PercentageChange, 1e-9)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "Category not found"}`))
	}), nil)

	_, err := c.CategoryProducts(context.Background(), "42", PageQuery{Page: 1, PerPage: 10})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())

	apiErr := AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Category not found", apiErr.Message)
}

func TestClient_ResolveIsSentOnce(t *testing.T) {
	var calls atomic.Int32
	var body map[string]string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/admin/anomalies/7/resolve", r.URL.Path)
		assert.Empty(t, r.Header.Get("Idempotency-Key"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message": "db down"}`))
	}), nil)

	err := c.ResolveAnomaly(context.Background(), "7", model.ResolutionDataError)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "DATA_ERROR", body["resolution"])

	apiErr := AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "db down", apiErr.Message)
}

func TestClient_RetryMutationsCarriesStableIdempotencyKey(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}), func(o *Options) { o.Retry.RetryMutations = true })

	require.NoError(t, c.ResolveAnomaly(context.Background(), "7", model.ResolutionConfirmedSale))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
}

func TestClient_CachesAndCoalescesGETs(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { mc.Close() })

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"items": [{"id": "a", "name": "Audio"}], "total": 1}`))
	}), func(o *Options) {
		o.Cache = mc
		o.CacheTTL = time.Minute
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Categories(context.Background())
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	_, err := c.Categories(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_RecommendationsCachedPerUser(t *testing.T) {
	var calls atomic.Int32
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { mc.Close() })

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		pick := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") + "-pick"
		_, _ = w.Write([]byte(`{"items": [{"id": 1, "name": "` + pick + `", "price": 10}]}`))
	}), func(o *Options) {
		o.Cache = mc
		o.CacheTTL = time.Minute
	})

	as := func(user string) context.Context {
		return principal.WithPrincipal(context.Background(), &principal.Principal{UserID: user, AccessToken: user})
	}

	for i := 0; i < 2; i++ {
		alice, err := c.Recommendations(as("alice"))
		require.NoError(t, err)
		require.Len(t, alice, 1)
		assert.Equal(t, "alice-pick", alice[0].Name)

		bob, err := c.Recommendations(as("bob"))
		require.NoError(t, err)
		require.Len(t, bob, 1)
		assert.Equal(t, "bob-pick", bob[0].Name)
	}
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_AnomaliesBypassCache(t *testing.T) {
	var calls atomic.Int32
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { mc.Close() })

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"data": [{"id": 9, "product_name": "TV", "price": 50, "old_price": 100}], "total": 120, "page": 2, "per_page": 50}`))
	}), func(o *Options) {
		o.Cache = mc
		o.CacheTTL = time.Minute
	})

	for i := 0; i < 2; i++ {
		page, err := c.ListAnomalies(context.Background(), PageQuery{Page: 2, PerPage: 50})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, 120, page.Total)
		assert.True(t, page.HasMore())
		assert.Equal(t, "pending", page.Items[0].Status)
		assert.InDelta(t, -50.0, page.Items[0].PercentageChange, 1e-9)
	}
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_ForwardsCallerHeaders(t *testing.T) {
	var auth, requestID string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		requestID = r.Header.Get(uid.Header)
		_, _ = w.Write([]byte(`{"total_products": 10}`))
	}), nil)

	ctx := principal.WithPrincipal(context.Background(), &principal.Principal{UserID: "u1", AccessToken: "tok"})
	ctx = uid.WithRequestID(ctx, "req-1")
	summary, err := c.MarketSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "req-1", requestID)
	assert.Equal(t, 10, summary.TotalProducts)
}

func TestClient_DecodeFailureIsBadGateway(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}), nil)

	_, err := c.Retailers(context.Background())
	require.Error(t, err)
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindDecode, ue.Kind)
	assert.Equal(t, http.StatusBadGateway, ue.Status)
}

func TestClient_TransportErrors(t *testing.T) {
	t.Run("refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		base := srv.URL
		srv.Close()

		c, err := New(Options{BaseURL: base, Retry: RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}})
		require.NoError(t, err)

		_, err = c.Categories(context.Background())
		var ue *Error
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, KindTransport, ue.Kind)
		assert.Equal(t, http.StatusServiceUnavailable, ue.Status)
	})

	t.Run("deadline", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}), nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.Categories(ctx)
		var ue *Error
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, http.StatusGatewayTimeout, ue.Status)
	})

	t.Run("canceled", func(t *testing.T) {
		c, _ := newTestClient(t, http.NotFoundHandler(), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Categories(ctx)
		var ue *Error
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, 499, ue.Status)
	})
}

func TestClient_ForecastDefaults(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"points": [{"price": 10}]}}`))
	}), nil)

	f, err := c.ProductForecast(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, model.ID("p1"), f.ProductID)
	assert.Equal(t, "stable", f.Trend)
	require.Len(t, f.Points, 1)
	assert.Equal(t, 10.0, f.Points[0].Lower)
	assert.Equal(t, 10.0, f.Points[0].Upper)
}

func TestClient_HistoryEnvelope(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "30", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"history": [{"price": 1}, {"price": 2}]}`))
	}), nil)

	points, err := c.ProductPriceHistory(context.Background(), "p1", 30)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantLen   int
		wantTotal int
		wantErr   bool
	}{
		{name: "bare array", raw: `[{"id":1},{"id":2}]`, wantLen: 2, wantTotal: 2},
		{name: "items", raw: `{"items":[{"id":1}],"total":30}`, wantLen: 1, wantTotal: 30},
		{name: "results with count", raw: `{"results":[{"id":1}],"count":4}`, wantLen: 1, wantTotal: 4},
		{name: "products", raw: `{"products":[{"id":1},{"id":2}]}`, wantLen: 2, wantTotal: 2},
		{name: "null", raw: `null`, wantLen: 0, wantTotal: 0},
		{name: "no list", raw: `{"foo":1}`, wantErr: true},
		{name: "garbage", raw: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, meta, err := decodeList[model.Product]([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.wantLen)
			assert.Equal(t, tt.wantTotal, meta.Total)
		})
	}
}

func TestDecodeSuggestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "strings", raw: `["iphone","ipad"]`, want: []string{"iphone", "ipad"}},
		{name: "objects", raw: `[{"text":"iphone"},{"name":"ipad"},{"query":"ipod"}]`, want: []string{"iphone", "ipad", "ipod"}},
		{name: "suggestions key", raw: `{"suggestions":["ip"]}`, want: []string{"ip"}},
		{name: "data key", raw: `{"data":[{"suggestion":"ipx"}]}`, want: []string{"ipx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSuggestions([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail": "Not allowed"}`, "Not allowed"},
		{`{"message": "Bad input"}`, "Bad input"},
		{`{"error": "Nope"}`, "Nope"},
		{`{"error": {"message": "Nested"}}`, "Nested"},
		{`{"detail": [{"msg": "field required"}]}`, "field required"},
		{`{"detail": ""}`, msgFallback},
		{`not json`, msgFallback},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractMessage([]byte(tt.body)), tt.body)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	c := &Client{retry: RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}}
	assert.Equal(t, 100*time.Millisecond, c.backoff(1))
	assert.Equal(t, 200*time.Millisecond, c.backoff(2))
	assert.Equal(t, 300*time.Millisecond, c.backoff(3))
}
