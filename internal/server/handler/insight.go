package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/server/middleware"
)

// InsightService defines the AI commentary the insight handler serves.
type InsightService interface {
	AnalyzeMarket(ctx context.Context, id string) (string, error)
	TradingStrategy(ctx context.Context, accountID string) ([]domain.StrategyStep, error)
}

// InsightHandler serves AI market analysis and portfolio strategy.
type InsightHandler struct {
	insights InsightService
	logger   *slog.Logger
}

// NewInsightHandler creates an InsightHandler.
func NewInsightHandler(insights InsightService, logger *slog.Logger) *InsightHandler {
	return &InsightHandler{insights: insights, logger: logger}
}

// Analyze returns commentary on one market.
// GET /api/insights/{id}
func (h *InsightHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	text, err := h.insights.AnalyzeMarket(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "analyze market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"quoteId": id, "analysis": text})
}

// Strategy returns a suggested plan for the account's holdings.
// GET /api/insights/strategy
func (h *InsightHandler) Strategy(w http.ResponseWriter, r *http.Request) {
	steps, err := h.insights.TradingStrategy(r.Context(), middleware.AccountID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, "trading strategy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}
