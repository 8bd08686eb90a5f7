package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nexusx/nexus/internal/domain"
)

// QuoteService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type QuoteService interface {
	List(ctx context.Context) []domain.Quote
	Get(ctx context.Context, id string) (domain.Quote, error)
	OrderBook(ctx context.Context, id string) (domain.OrderBook, error)
	Chart(ctx context.Context, id string) ([]domain.ChartPoint, error)
}

// MarketHandler serves the market list and per-market views.
type MarketHandler struct {
	quotes QuoteService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(quotes QuoteService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		quotes: quotes,
		logger: logger,
	}
}

type listMarketsResponse struct {
	Markets []domain.Quote `json:"markets"`
	Total   int            `json:"total"`
}

// ListMarkets returns every listed quote.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	quotes := h.quotes.List(r.Context())
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: quotes, Total: len(quotes)})
}

// GetMarket returns a single quote by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	q, err := h.quotes.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetOrderBook returns the simulated depth of a market.
// GET /api/markets/{id}/orderbook
func (h *MarketHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.quotes.OrderBook(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "order book", err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// GetChart returns the mock price series of a market.
// GET /api/markets/{id}/chart
func (h *MarketHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	points, err := h.quotes.Chart(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "chart", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}
