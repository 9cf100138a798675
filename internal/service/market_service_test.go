package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/notify"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
	"github.com/alanyoungcy/marketsync/internal/syncer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lenVenue measures the joined id list against limit.
type lenVenue struct {
	name  domain.Venue
	limit int
}

func (v lenVenue) Name() domain.Venue { return v.name }
func (v lenVenue) BaseURL(env domain.Environment) string { return "http://" + string(v.name) }
func (v lenVenue) SizeLimit() int { return v.limit }

func (v lenVenue) BatchRequest(ctx context.Context, env domain.Environment, ids []string) (*http.Request, error) {
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	return http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL(env)+"/m?"+q.Encode(), nil)
}

func (v lenVenue) RequestSize(req *http.Request) int { return len(req.URL.Query().Get("ids")) }
func (v lenVenue) Records(body []byte) ([]venue.Record, error) { return nil, nil }
func (v lenVenue) Decode(m *domain.Market, raw json.RawMessage) error { return nil }

// fakeSyncer records every round and marks each market updated unless its id
// is listed in fail.
type fakeSyncer struct {
	venues map[domain.Venue]venue.Venue
	fail   map[string]bool

	mu     sync.Mutex
	rounds [][]string
}

func newFakeSyncer(venues ...venue.Venue) *fakeSyncer {
	s := &fakeSyncer{venues: make(map[domain.Venue]venue.Venue), fail: make(map[string]bool)}
	for _, v := range venues {
		s.venues[v.Name()] = v
	}
	return s
}

func (s *fakeSyncer) Venue(name domain.Venue) (venue.Venue, bool) {
	v, ok := s.venues[name]
	return v, ok
}

func (s *fakeSyncer) RefreshMany(ctx context.Context, markets []*domain.Market) (*syncer.Result, error) {
	var ids []string
	res := &syncer.Result{}
	index := make(map[domain.PartitionKey]int)
	requested := make(map[string]bool)
	for _, m := range markets {
		ids = append(ids, m.ID)
		i, ok := index[m.Key()]
		if !ok {
			i = len(res.Partitions)
			index[m.Key()] = i
			res.Partitions = append(res.Partitions, syncer.PartitionResult{Key: m.Key()})
		}
		p := &res.Partitions[i]
		if id := m.Key().String() + "/" + m.ID; !requested[id] {
			requested[id] = true
			p.Requested++
		}
		if s.fail[m.ID] {
			p.Err = errors.Join(p.Err, errors.New("boom "+m.ID))
			continue
		}
		p.Updated = append(p.Updated, m)
		res.Updated = append(res.Updated, m)
	}

	s.mu.Lock()
	s.rounds = append(s.rounds, ids)
	s.mu.Unlock()
	return res, res.Err()
}

type fakeBus struct {
	mu     sync.Mutex
	events []domain.RefreshEvent
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }

func (b *fakeBus) PublishRefresh(ctx context.Context, ev domain.RefreshEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

type fakeSender struct {
	titles []string
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	f.titles = append(f.titles, title)
	return nil
}

func kalshi(id string) *domain.Market {
	return domain.NewMarket(domain.VenueKalshi, domain.EnvProduction, id)
}

func polymarket(id string) *domain.Market {
	return domain.NewMarket(domain.VenuePolymarket, domain.EnvProduction, id)
}

func TestTrack(t *testing.T) {
	svc := NewMarketService(newFakeSyncer(), nil, nil, testLogger())

	first := kalshi("A")
	if n := svc.Track(first, kalshi("B"), polymarket("A")); n != 3 {
		t.Fatalf("Track added %d, want 3", n)
	}
	if n := svc.Track(kalshi("A"), nil, kalshi(""), domain.NewMarket(domain.VenueKalshi, domain.EnvDemo, "A")); n != 1 {
		t.Fatalf("second Track added %d, want 1", n)
	}

	got, ok := svc.Get(domain.VenueKalshi, domain.EnvProduction, "A")
	if !ok || got != first {
		t.Errorf("Get returned %p, want the first tracked object %p", got, first)
	}
	if _, ok := svc.Get(domain.VenuePolymarket, domain.EnvDemo, "A"); ok {
		t.Error("Get found a market in an untracked partition")
	}

	var ids []string
	for _, m := range svc.Tracked() {
		ids = append(ids, m.Key().String()+":"+m.ID)
	}
	want := "kalshi/prod:A,kalshi/prod:B,polymarket/prod:A,kalshi/demo:A"
	if strings.Join(ids, ",") != want {
		t.Errorf("Tracked = %v, want %s", ids, want)
	}
}

func TestRefreshAllRounds(t *testing.T) {
	fs := newFakeSyncer(
		lenVenue{name: domain.VenueKalshi, limit: 5},
		lenVenue{name: domain.VenuePolymarket, limit: 100},
	)
	svc := NewMarketService(fs, nil, nil, testLogger())
	svc.Track(kalshi("aa"), kalshi("bb"), polymarket("p1"), kalshi("cc"), kalshi("dd"), kalshi("ee"))

	res, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if len(res.Updated) != 6 {
		t.Errorf("Updated %d markets, want 6", len(res.Updated))
	}

	want := []string{"aa,bb,p1", "cc,dd", "ee"}
	if len(fs.rounds) != len(want) {
		t.Fatalf("rounds = %v, want %v", fs.rounds, want)
	}
	for i := range want {
		if got := strings.Join(fs.rounds[i], ","); got != want[i] {
			t.Errorf("round %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestRefreshUnchunkablePartition(t *testing.T) {
	fs := newFakeSyncer(
		lenVenue{name: domain.VenueKalshi, limit: 4},
		lenVenue{name: domain.VenuePolymarket, limit: 100},
	)
	svc := NewMarketService(fs, nil, nil, testLogger())

	res, err := svc.Refresh(context.Background(), []*domain.Market{kalshi("toolong"), polymarket("p1")})

	var tooLarge *domain.RequestTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("error = %v, want *domain.RequestTooLargeError", err)
	}
	if len(res.Updated) != 1 || res.Updated[0].ID != "p1" {
		t.Errorf("Updated = %v, want only p1", res.Updated)
	}
	if res.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", res.Failed())
	}
	if len(fs.rounds) != 1 || strings.Join(fs.rounds[0], ",") != "p1" {
		t.Errorf("rounds = %v, want [[p1]]", fs.rounds)
	}
}

func TestRefreshUnknownVenuePassesThrough(t *testing.T) {
	fs := newFakeSyncer()
	svc := NewMarketService(fs, nil, nil, testLogger())

	if _, err := svc.Refresh(context.Background(), []*domain.Market{kalshi("A")}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(fs.rounds) != 1 || fs.rounds[0][0] != "A" {
		t.Errorf("rounds = %v, want the market handed to the synchronizer", fs.rounds)
	}
}

func TestRefreshPublishesEvents(t *testing.T) {
	fs := newFakeSyncer(
		lenVenue{name: domain.VenueKalshi, limit: 100},
		lenVenue{name: domain.VenuePolymarket, limit: 100},
	)
	fs.fail["B"] = true
	bus := &fakeBus{}
	svc := NewMarketService(fs, bus, nil, testLogger())
	svc.Track(kalshi("A"), kalshi("B"), polymarket("p1"))

	if _, err := svc.RefreshAll(context.Background()); err == nil {
		t.Fatal("RefreshAll returned nil error with a failing market")
	}

	if len(bus.events) != 2 {
		t.Fatalf("published %d events, want 2", len(bus.events))
	}
	runID := bus.events[0].RunID
	if runID == "" || bus.events[1].RunID != runID {
		t.Errorf("run ids = %q, %q; want one shared non-empty id", runID, bus.events[1].RunID)
	}

	k := bus.events[0]
	if k.Venue != domain.VenueKalshi || k.Failed != 1 || k.Error == "" {
		t.Errorf("kalshi event = %+v", k)
	}
	if strings.Join(k.Updated, ",") != "A" {
		t.Errorf("kalshi Updated = %v, want [A]", k.Updated)
	}
	if p := bus.events[1]; p.Venue != domain.VenuePolymarket || p.Failed != 0 || p.Error != "" {
		t.Errorf("polymarket event = %+v", p)
	}
}

func TestRefreshEventCountsDuplicateMarketsOnce(t *testing.T) {
	fs := newFakeSyncer(lenVenue{name: domain.VenueKalshi, limit: 100})
	fs.fail["B"] = true
	bus := &fakeBus{}
	svc := NewMarketService(fs, bus, nil, testLogger())

	a1, a2 := kalshi("A"), kalshi("A")
	svc.Refresh(context.Background(), []*domain.Market{a1, a2, kalshi("B")})

	if len(bus.events) != 1 {
		t.Fatalf("published %d events, want 1", len(bus.events))
	}
	if ev := bus.events[0]; ev.Failed != 1 || len(ev.Updated) != 2 {
		t.Errorf("event = %+v, want Failed 1 and both A markets updated", ev)
	}

	svc.Refresh(context.Background(), []*domain.Market{a1, a2})
	if ev := bus.events[1]; ev.Failed != 0 {
		t.Errorf("Failed = %d for a clean refresh of duplicates, want 0", ev.Failed)
	}
}

func TestRefreshAlerts(t *testing.T) {
	fs := newFakeSyncer(lenVenue{name: domain.VenueKalshi, limit: 100})
	sender := &fakeSender{}
	n := notify.NewNotifier([]notify.Sender{sender}, nil, testLogger())
	svc := NewMarketService(fs, nil, n, testLogger())
	svc.Track(kalshi("A"))
	ctx := context.Background()

	if _, err := svc.RefreshAll(ctx); err != nil {
		t.Fatalf("clean run: %v", err)
	}
	if len(sender.titles) != 0 {
		t.Fatalf("clean run sent %v", sender.titles)
	}

	fs.fail["A"] = true
	svc.RefreshAll(ctx)
	svc.RefreshAll(ctx)
	if len(sender.titles) != 2 {
		t.Fatalf("failing runs sent %d alerts, want 2", len(sender.titles))
	}

	delete(fs.fail, "A")
	svc.RefreshAll(ctx)
	svc.RefreshAll(ctx)
	if len(sender.titles) != 3 {
		t.Fatalf("sent %d alerts after recovery, want 3", len(sender.titles))
	}
	if sender.titles[2] != "marketsync: refresh recovered" {
		t.Errorf("last alert = %q", sender.titles[2])
	}
}

func TestLastRunAndSnapshot(t *testing.T) {
	fs := newFakeSyncer(lenVenue{name: domain.VenueKalshi, limit: 100})
	fs.fail["B"] = true
	svc := NewMarketService(fs, nil, nil, testLogger())
	svc.Track(kalshi("A"), kalshi("B"))

	if _, ok := svc.LastRun(); ok {
		t.Fatal("LastRun reported a run before any refresh")
	}
	svc.RefreshAll(context.Background())

	run, ok := svc.LastRun()
	if !ok {
		t.Fatal("LastRun missing after refresh")
	}
	if run.RunID == "" || run.Requested != 2 || run.Updated != 1 || run.Failed != 1 || run.Error == "" {
		t.Errorf("LastRun = %+v", run)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Errorf("FinishedAt %v before StartedAt %v", run.FinishedAt, run.StartedAt)
	}

	snap := svc.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot has %d markets, want 2", len(snap))
	}
	snap[0].Title = "changed"
	if m, _ := svc.Get(domain.VenueKalshi, domain.EnvProduction, "A"); m.Title == "changed" {
		t.Error("Snapshot shares state with the tracked market")
	}

	if _, ok := svc.Lookup(domain.VenueKalshi, domain.EnvProduction, "B"); !ok {
		t.Error("Lookup did not find B")
	}
	if _, ok := svc.Lookup(domain.VenueKalshi, domain.EnvProduction, "C"); ok {
		t.Error("Lookup found an untracked market")
	}
}
