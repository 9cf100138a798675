package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/shopspring/decimal"
)

// MarketService defines what the market handler reads from the service layer.
// It is declared locally so the handler package does not depend on the
// concrete service implementation.
type MarketService interface {
	Snapshot() []domain.Market
	Lookup(v domain.Venue, env domain.Environment, id string) (domain.Market, bool)
}

// MarketHandler serves the tracked-market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "market"),
	}
}

type marketView struct {
	Venue             domain.Venue       `json:"venue"`
	Environment       domain.Environment `json:"environment"`
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Rules             string             `json:"rules"`
	Open              bool               `json:"open"`
	OpenTime          time.Time          `json:"open_time"`
	CloseTime         time.Time          `json:"close_time"`
	TokenIDs          map[string]string  `json:"token_ids,omitempty"`
	BestYes           *decimal.Decimal   `json:"best_yes,omitempty"`
	BestNo            *decimal.Decimal   `json:"best_no,omitempty"`
	LastRefreshedData *time.Time         `json:"last_refreshed_data"`
	LastRefreshedBook *time.Time         `json:"last_refreshed_book,omitempty"`
}

func toView(m domain.Market) marketView {
	v := marketView{
		Venue:             m.Venue,
		Environment:       m.Environment,
		ID:                m.ID,
		Title:             m.Title,
		Rules:             m.Rules,
		Open:              m.Open,
		OpenTime:          m.OpenTime,
		CloseTime:         m.CloseTime,
		TokenIDs:          m.TokenIDs,
		LastRefreshedData: m.LastRefreshedData,
		LastRefreshedBook: m.LastRefreshedBook,
	}
	if m.Book != nil {
		if p, ok := m.Book.BestYes(); ok {
			v.BestYes = &p
		}
		if p, ok := m.Book.BestNo(); ok {
			v.BestNo = &p
		}
	}
	return v
}

type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns tracked markets, optionally filtered by venue and
// environment.
// GET /api/markets?venue=kalshi&environment=prod&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r)
	venue := domain.Venue(r.URL.Query().Get("venue"))
	env := domain.Environment(r.URL.Query().Get("environment"))

	var filtered []domain.Market
	for _, m := range h.markets.Snapshot() {
		if venue != "" && m.Venue != venue {
			continue
		}
		if env != "" && m.Environment != env {
			continue
		}
		filtered = append(filtered, m)
	}

	start, end := p.window(len(filtered))
	views := make([]marketView, 0, end-start)
	for _, m := range filtered[start:end] {
		views = append(views, toView(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   len(filtered),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
}

// GetMarket returns one tracked market.
// GET /api/markets/{venue}/{environment}/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	venue := domain.Venue(r.PathValue("venue"))
	env := domain.Environment(r.PathValue("environment"))
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, ok := h.markets.Lookup(venue, env, id)
	if !ok {
		h.logger.DebugContext(r.Context(), "market not tracked",
			slog.String("venue", string(venue)),
			slog.String("environment", string(env)),
			slog.String("market_id", id),
		)
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, toView(m))
}
