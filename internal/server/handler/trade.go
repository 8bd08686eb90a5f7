package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/server/middleware"
)

// LedgerService defines the ledger operations the trade handler requires.
type LedgerService interface {
	ExecuteTrade(ctx context.Context, accountID string, req domain.TradeRequest) (domain.Order, error)
	Wallet(ctx context.Context, accountID string) (domain.Wallet, error)
	Orders(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error)
}

// TradeHandler serves trading and wallet endpoints for the request's
// account.
type TradeHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(ledger LedgerService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{ledger: ledger, logger: logger}
}

// PlaceTrade buys or sells at the current quote.
// POST /api/trades {"side":"buy","symbol":"BTC","amount":"0.1"}
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	var req domain.TradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Side.Valid() {
		writeError(w, http.StatusBadRequest, `side must be "buy" or "sell"`)
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	order, err := h.ledger.ExecuteTrade(r.Context(), middleware.AccountID(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "trade", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetWallet returns the account's cash and non-empty holdings.
// GET /api/wallet
func (h *TradeHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.ledger.Wallet(r.Context(), middleware.AccountID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, "wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListOrders returns the account's orders, most recent first.
// GET /api/orders?limit=50&offset=0
func (h *TradeHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	orders, err := h.ledger.Orders(r.Context(), middleware.AccountID(r.Context()), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list orders", err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders, Limit: opts.Limit, Offset: opts.Offset})
}
