package kalshi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := testClient(WithEndpoints(domain.Endpoints{
		Production: server.URL + "/prod",
		Demo:       server.URL + "/demo",
	}))
	return server, c
}

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient(domain.EnvProduction)
		if c.endpoints != DefaultEndpoints {
			t.Errorf("endpoints = %+v, want %+v", c.endpoints, DefaultEndpoints)
		}
		hc, ok := c.httpClient.(*http.Client)
		if !ok {
			t.Fatalf("httpClient = %T, want *http.Client", c.httpClient)
		}
		if hc.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", hc.Timeout, 30*time.Second)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
		if c.LoggedIn() {
			t.Error("LoggedIn() = true without credentials")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		custom := &http.Client{Timeout: 5 * time.Second}
		c := NewClient(domain.EnvDemo,
			WithLogger(logger),
			WithHTTPClient(custom),
			WithCredentials(domain.Credentials{KeyID: "key", PrivateKey: "pem"}),
		)
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.httpClient != custom {
			t.Error("custom HTTP client not set")
		}
		if !c.LoggedIn() {
			t.Error("LoggedIn() = false with both credentials")
		}
		if c.Environment() != domain.EnvDemo {
			t.Errorf("Environment() = %q, want demo", c.Environment())
		}
	})

	t.Run("half credentials", func(t *testing.T) {
		c := NewClient(domain.EnvProduction, WithCredentials(domain.Credentials{KeyID: "key"}))
		if c.LoggedIn() {
			t.Error("LoggedIn() = true with key id only")
		}
	})
}

func TestBaseURL(t *testing.T) {
	c := NewClient(domain.EnvProduction)
	tests := []struct {
		env  domain.Environment
		want string
	}{
		{domain.EnvProduction, "https://api.elections.kalshi.com/trade-api/v2"},
		{domain.EnvDemo, "https://demo-api.kalshi.co/trade-api/v2"},
		{domain.Environment("staging"), "https://api.elections.kalshi.com/trade-api/v2"},
	}
	for _, tt := range tests {
		if got := c.BaseURL(tt.env); got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestGetMarket(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/prod/markets/KXHIGHNY-25MAR01-B50" {
				t.Errorf("path = %q", r.URL.Path)
			}
			w.Write([]byte(`{"market":` + sampleMarket + `}`))
		})

		m, err := c.GetMarket(context.Background(), "KXHIGHNY-25MAR01-B50")
		if err != nil {
			t.Fatalf("GetMarket: %v", err)
		}
		if m.ID != "KXHIGHNY-25MAR01-B50" || !m.Loaded() {
			t.Errorf("market = %+v", m)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"not_found","message":"market not found"}}`))
		})

		_, err := c.GetMarket(context.Background(), "NOPE")
		var apiErr *domain.APIRequestError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *domain.APIRequestError", err)
		}
		if apiErr.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
		}
		if string(apiErr.Payload) != `{"code":"not_found","message":"market not found"}` {
			t.Errorf("Payload = %s", apiErr.Payload)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			t.Error("errors.Is(err, ErrNotFound) = false")
		}
	})

	t.Run("uses market environment", func(t *testing.T) {
		var path atomic.Value
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			path.Store(r.URL.Path)
			w.Write([]byte(`{"market":` + sampleMarket + `}`))
		})

		m := domain.NewMarket(domain.VenueKalshi, domain.EnvDemo, "KXHIGHNY-25MAR01-B50")
		if err := c.RefreshMarket(context.Background(), m); err != nil {
			t.Fatalf("RefreshMarket: %v", err)
		}
		if got := path.Load().(string); !strings.HasPrefix(got, "/demo/") {
			t.Errorf("path = %q, want demo host", got)
		}
	})
}

func TestListMarkets(t *testing.T) {
	t.Run("passes cursor and filters through", func(t *testing.T) {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("limit") != "2" || q.Get("cursor") != "abc" || q.Get("status") != "open" {
				t.Errorf("query = %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"markets":[` + sampleMarket + `],"cursor":"def"}`))
		})

		markets, cursor, err := c.ListMarkets(context.Background(), ListOptions{Limit: 2, Cursor: "abc", Status: "open"})
		if err != nil {
			t.Fatalf("ListMarkets: %v", err)
		}
		if len(markets) != 1 || markets[0].ID != "KXHIGHNY-25MAR01-B50" {
			t.Errorf("markets = %+v", markets)
		}
		if cursor != "def" {
			t.Errorf("cursor = %q, want def", cursor)
		}
	})

	t.Run("zero limit omits parameter", func(t *testing.T) {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				t.Errorf("query = %q, want empty", r.URL.RawQuery)
			}
			w.Write([]byte(`{"markets":[],"cursor":""}`))
		})

		markets, cursor, err := c.ListMarkets(context.Background(), ListOptions{})
		if err != nil {
			t.Fatalf("ListMarkets: %v", err)
		}
		if len(markets) != 0 || cursor != "" {
			t.Errorf("got %d markets, cursor %q", len(markets), cursor)
		}
	})

	t.Run("server error", func(t *testing.T) {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, _, err := c.ListMarkets(context.Background(), ListOptions{})
		var apiErr *domain.APIRequestError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
			t.Fatalf("error = %v, want 500 APIRequestError", err)
		}
		if apiErr.Payload != nil {
			t.Errorf("Payload = %s, want nil", apiErr.Payload)
		}
	})
}

func TestListMarketsSkipsUndecodableRecords(t *testing.T) {
	bad := strings.Replace(strings.Replace(sampleMarket, "KXHIGHNY-25MAR01-B50", "BAD-1", 1), `"close_time"`, `"closing"`, 1)
	second := strings.Replace(sampleMarket, "KXHIGHNY-25MAR01-B50", "GOOD-2", 1)
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"markets":[` + sampleMarket + `,` + bad + `,` + second + `],"cursor":"next"}`))
	})

	markets, cursor, err := c.ListMarkets(context.Background(), ListOptions{Limit: 3})
	var decodeErr *domain.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want *domain.DecodeError", err)
	}
	if decodeErr.ID != "BAD-1" || decodeErr.Field != "close_time" {
		t.Errorf("decode error = %+v", decodeErr)
	}
	if len(markets) != 2 || markets[0].ID != "KXHIGHNY-25MAR01-B50" || markets[1].ID != "GOOD-2" {
		t.Fatalf("markets = %+v, want the two decodable records", markets)
	}
	if cursor != "next" {
		t.Errorf("cursor = %q, want next", cursor)
	}
}

func TestListMarketsLoadsFullPage(t *testing.T) {
	var records []string
	for i := 0; i < 20; i++ {
		records = append(records, strings.Replace(sampleMarket, "KXHIGHNY-25MAR01-B50", fmt.Sprintf("KXTEST-%02d", i), 1))
	}
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "20" || q.Get("status") != "active" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"markets":[` + strings.Join(records, ",") + `],"cursor":""}`))
	})

	markets, _, err := c.ListMarkets(context.Background(), ListOptions{Limit: 20, Status: "active"})
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(markets) != 20 {
		t.Fatalf("got %d markets, want 20", len(markets))
	}
	for i, m := range markets {
		if !m.Loaded() || m.LastRefreshedData == nil {
			t.Errorf("market %d (%s) not loaded", i, m.ID)
		}
		if want := fmt.Sprintf("KXTEST-%02d", i); m.ID != want || m.Environment != domain.EnvProduction {
			t.Errorf("market %d = %s/%s, want %s", i, m.Environment, m.ID, want)
		}
	}
}

func TestRefreshBook(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prod/markets/T-1/orderbook" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"orderbook":{"yes":[[45,100],[44,20]],"no":[{"price":53,"quantity":7}]}}`))
	})

	m := domain.NewMarket(domain.VenueKalshi, domain.EnvProduction, "T-1")
	if err := c.RefreshBook(context.Background(), m); err != nil {
		t.Fatalf("RefreshBook: %v", err)
	}

	yes := m.Book.Yes()
	if len(yes) != 2 {
		t.Fatalf("len(yes) = %d, want 2", len(yes))
	}
	if !yes[0].Price.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("yes[0].Price = %s, want 0.45", yes[0].Price)
	}
	if !yes[0].Quantity.Equal(decimal.NewFromInt(100)) {
		t.Errorf("yes[0].Quantity = %s, want 100", yes[0].Quantity)
	}
	no := m.Book.No()
	if len(no) != 1 || !no[0].Price.Equal(decimal.RequireFromString("0.53")) {
		t.Errorf("no = %+v", no)
	}
	if m.LastRefreshedBook == nil || !m.LastRefreshedBook.Equal(fixedNow) {
		t.Errorf("LastRefreshedBook = %v", m.LastRefreshedBook)
	}
	if m.LastRefreshedData != nil {
		t.Error("RefreshBook must not touch LastRefreshedData")
	}
}

func TestBatchRequest(t *testing.T) {
	c := NewClient(domain.EnvProduction)
	req, err := c.BatchRequest(context.Background(), domain.EnvDemo, []string{"A-1", "B-2", "C-3"})
	if err != nil {
		t.Fatalf("BatchRequest: %v", err)
	}
	if req.Method != http.MethodGet {
		t.Errorf("Method = %q", req.Method)
	}
	if !strings.HasPrefix(req.URL.String(), "https://demo-api.kalshi.co/trade-api/v2/markets?") {
		t.Errorf("URL = %q", req.URL)
	}
	q := req.URL.Query()
	if q.Get("tickers") != "A-1,B-2,C-3" {
		t.Errorf("tickers = %q", q.Get("tickers"))
	}
	if q.Get("limit") != "3" {
		t.Errorf("limit = %q, want 3", q.Get("limit"))
	}
	if c.RequestSize(req) != len(req.URL.RawQuery) {
		t.Errorf("RequestSize = %d, want query length %d", c.RequestSize(req), len(req.URL.RawQuery))
	}
	if c.SizeLimit() != 2000 {
		t.Errorf("SizeLimit = %d, want 2000", c.SizeLimit())
	}
}

func TestRecords(t *testing.T) {
	c := NewClient(domain.EnvProduction)
	recs, err := c.Records([]byte(`{"markets":[{"ticker":"A"},{"title":"no ticker"},{"ticker":"B"}],"cursor":""}`))
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	got := []string{recs[0].ID, recs[1].ID, recs[2].ID}
	want := []string{"A", "", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d ID = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := c.Records([]byte(`not json`)); err == nil {
		t.Error("Records(invalid) returned nil error")
	}
}
