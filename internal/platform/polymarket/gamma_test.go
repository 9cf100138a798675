package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alanyoungcy/marketsync/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *GammaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return testClient(WithEndpoints(domain.Endpoints{
		Production: server.URL,
		Demo:       server.URL + "/demo",
	}))
}

func TestNewGammaClient(t *testing.T) {
	g := NewGammaClient(domain.EnvDemo)
	if got := g.BaseURL(domain.EnvDemo); got != "https://gamma-api.polymarket.com" {
		t.Errorf("BaseURL(demo) = %q", got)
	}
	if got := g.BaseURL(domain.EnvProduction); got != "https://gamma-api.polymarket.com" {
		t.Errorf("BaseURL(prod) = %q", got)
	}
	if g.LoggedIn() {
		t.Error("LoggedIn() = true without credentials")
	}
	g = NewGammaClient(domain.EnvDemo, WithCredentials(domain.Credentials{KeyID: "k", PrivateKey: "p"}))
	if !g.LoggedIn() {
		t.Error("LoggedIn() = false with credentials")
	}
}

func TestGetMarket(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		g := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/markets" || r.URL.Query().Get("condition_ids") != sampleCondition {
				t.Errorf("request = %s", r.URL)
			}
			w.Write([]byte(`[` + sampleMarket + `]`))
		})

		m, err := g.GetMarket(context.Background(), sampleCondition)
		if err != nil {
			t.Fatalf("GetMarket: %v", err)
		}
		if m.ID != sampleCondition || !m.Loaded() {
			t.Errorf("market = %+v", m)
		}
	})

	t.Run("empty result is not found", func(t *testing.T) {
		g := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		})

		_, err := g.GetMarket(context.Background(), "0xmissing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("non-200", func(t *testing.T) {
		g := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"slow down"}`))
		})

		_, err := g.GetMarket(context.Background(), sampleCondition)
		var apiErr *domain.APIRequestError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *domain.APIRequestError", err)
		}
		if string(apiErr.Payload) != `"slow down"` {
			t.Errorf("Payload = %s", apiErr.Payload)
		}
		if !errors.Is(err, domain.ErrRateLimited) {
			t.Error("errors.Is(err, ErrRateLimited) = false")
		}
	})
}

func TestListMarkets(t *testing.T) {
	t.Run("offset cursor", func(t *testing.T) {
		var calls atomic.Int32
		g := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			q := r.URL.Query()
			switch q.Get("offset") {
			case "":
				w.Write([]byte(`[` + sampleMarket + `,` + strings.Replace(sampleMarket, "0xabc123", "0xdef456", 1) + `]`))
			case "2":
				w.Write([]byte(`[` + strings.Replace(sampleMarket, "0xabc123", "0x789", 1) + `]`))
			default:
				t.Errorf("unexpected offset %q", q.Get("offset"))
			}
		})

		page, cursor, err := g.ListMarkets(context.Background(), ListOptions{Limit: 2})
		if err != nil {
			t.Fatalf("ListMarkets: %v", err)
		}
		if len(page) != 2 || cursor != "2" {
			t.Fatalf("got %d markets, cursor %q", len(page), cursor)
		}

		page, cursor, err = g.ListMarkets(context.Background(), ListOptions{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("ListMarkets: %v", err)
		}
		if len(page) != 1 || page[0].ID != "0x789" {
			t.Errorf("page = %+v", page)
		}
		if cursor != "" {
			t.Errorf("cursor = %q, want empty after a short page", cursor)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("status filter and zero limit", func(t *testing.T) {
		g := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Has("limit") {
				t.Errorf("limit sent: %q", r.URL.RawQuery)
			}
			if q.Get("active") != "true" || q.Get("closed") != "false" {
				t.Errorf("query = %q", r.URL.RawQuery)
			}
			w.Write([]byte(`[]`))
		})

		page, cursor, err := g.ListMarkets(context.Background(), ListOptions{Status: "open"})
		if err != nil {
			t.Fatalf("ListMarkets: %v", err)
		}
		if len(page) != 0 || cursor != "" {
			t.Errorf("got %d markets, cursor %q", len(page), cursor)
		}
	})

	t.Run("rejects bad cursor and status", func(t *testing.T) {
		g := NewGammaClient(domain.EnvProduction)
		if _, _, err := g.ListMarkets(context.Background(), ListOptions{Cursor: "abc"}); err == nil {
			t.Error("want error for non-numeric cursor")
		}
		if _, _, err := g.ListMarkets(context.Background(), ListOptions{Status: "settled"}); err == nil {
			t.Error("want error for unsupported status")
		}
	})
}

func TestListMarketsSkipsUndecodableRecords(t *testing.T) {
	bad := strings.Replace(strings.Replace(sampleMarket, "0xabc123", "0x2", 1), `"endDate"`, `"end"`, 1)
	second := strings.Replace(sampleMarket, "0xabc123", "0x3", 1)
	g := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[` + sampleMarket + `,` + bad + `,` + second + `]`))
	})

	markets, cursor, err := g.ListMarkets(context.Background(), ListOptions{Limit: 3})
	var decodeErr *domain.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want *domain.DecodeError", err)
	}
	if decodeErr.ID != "0x2" || decodeErr.Field != "endDate" {
		t.Errorf("decode error = %+v", decodeErr)
	}
	if len(markets) != 2 || markets[0].ID != sampleCondition || markets[1].ID != "0x3" {
		t.Fatalf("markets = %+v, want the two decodable records", markets)
	}
	if cursor != "3" {
		t.Errorf("cursor = %q, want 3 so paging continues past the full page", cursor)
	}
}

func TestListMarketsLoadsFullPage(t *testing.T) {
	var records []string
	for i := 0; i < 20; i++ {
		records = append(records, strings.Replace(sampleMarket, "0xabc123", fmt.Sprintf("0xc%02d", i), 1))
	}
	g := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "20" || q.Get("active") != "true" || q.Get("closed") != "false" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Write([]byte(`[` + strings.Join(records, ",") + `]`))
	})

	markets, _, err := g.ListMarkets(context.Background(), ListOptions{Limit: 20, Status: "active"})
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
		if want := fmt.Sprintf("0xc%02d", i); m.ID != want {
			t.Errorf("market %d id = %s, want %s", i, m.ID, want)
		}
	}
}

func TestBatchRequest(t *testing.T) {
	g := NewGammaClient(domain.EnvProduction)
	req, err := g.BatchRequest(context.Background(), domain.EnvProduction, []string{"0x1", "0x2"})
	if err != nil {
		t.Fatalf("BatchRequest: %v", err)
	}
	ids := req.URL.Query()["condition_ids"]
	if len(ids) != 2 || ids[0] != "0x1" || ids[1] != "0x2" {
		t.Errorf("condition_ids = %v", ids)
	}
	if g.RequestSize(req) != len(req.URL.String()) {
		t.Errorf("RequestSize = %d, want full URL length", g.RequestSize(req))
	}
	if g.SizeLimit() != 8192 {
		t.Errorf("SizeLimit = %d, want 8192", g.SizeLimit())
	}

	recs, err := g.Records([]byte(`[{"conditionId":"0x2"},{"question":"anon"}]`))
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "0x2" || recs[1].ID != "" {
		t.Errorf("records = %+v", recs)
	}
}
