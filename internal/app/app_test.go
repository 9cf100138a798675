package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alanyoungcy/marketsync/internal/config"
	"github.com/alanyoungcy/marketsync/internal/domain"
)

func kalshiRecord(ticker string) string {
	return fmt.Sprintf(`{"ticker":%q,"title":"T %s","rules_primary":"R","status":"active",`+
		`"open_time":"2024-01-01T00:00:00Z","close_time":"2024-06-01T00:00:00Z"}`, ticker, ticker)
}

func testConfig(kalshiURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Kalshi.BaseURL = kalshiURL
	cfg.Polymarket.Enabled = false
	return &cfg
}

func testApp(cfg *config.Config) *App {
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOnceModeSeededTickers(t *testing.T) {
	var batches atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			http.NotFound(w, r)
			return
		}
		batches.Add(1)
		var recs []string
		for _, id := range strings.Split(r.URL.Query().Get("tickers"), ",") {
			recs = append(recs, kalshiRecord(id))
		}
		fmt.Fprintf(w, `{"markets":[%s],"cursor":""}`, strings.Join(recs, ","))
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Sync.Tickers = []string{"KX-A", "KX-B"}
	a := testApp(cfg)
	defer a.Close()

	deps, cleanup, err := Wire(context.Background(), cfg, a.root)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()
	rt := a.build(deps)

	if err := a.OnceMode(context.Background(), rt); err != nil {
		t.Fatalf("OnceMode: %v", err)
	}
	if batches.Load() != 1 {
		t.Errorf("batch requests = %d, want 1", batches.Load())
	}
	for _, id := range cfg.Sync.Tickers {
		m, ok := rt.markets.Get(domain.VenueKalshi, domain.EnvProduction, id)
		if !ok || !m.Loaded() || m.Title != "T "+id {
			t.Errorf("market %s = %+v", id, m)
		}
	}
}

func TestOnceModeDiscovery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("tickers") != "":
			var recs []string
			for _, id := range strings.Split(q.Get("tickers"), ",") {
				recs = append(recs, kalshiRecord(id))
			}
			fmt.Fprintf(w, `{"markets":[%s]}`, strings.Join(recs, ","))
		case q.Get("cursor") == "":
			fmt.Fprintf(w, `{"markets":[%s],"cursor":"p2"}`, kalshiRecord("D1"))
		default:
			fmt.Fprintf(w, `{"markets":[%s],"cursor":""}`, kalshiRecord("D2"))
		}
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	a := testApp(cfg)
	defer a.Close()

	deps, cleanup, err := Wire(context.Background(), cfg, a.root)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()
	rt := a.build(deps)

	if err := a.OnceMode(context.Background(), rt); err != nil {
		t.Fatalf("OnceMode: %v", err)
	}
	if got := len(rt.markets.Tracked()); got != 2 {
		t.Errorf("tracked = %d, want 2", got)
	}
	if run, ok := rt.markets.LastRun(); !ok || run.Updated != 2 {
		t.Errorf("LastRun = %+v, %v", run, ok)
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.Mode = "trade"
	a := testApp(cfg)
	defer a.Close()

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("Run accepted an unknown mode")
	}
}
