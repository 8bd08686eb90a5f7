package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/nexusx/nexus/internal/domain"
)

// FallbackAnalysis is returned in place of a market analysis the model
// could not produce.
const FallbackAnalysis = "Unable to fetch AI insights at this moment. Please try again later."

// InsightClient is the generative-model collaborator.
type InsightClient interface {
	AnalyzeMarket(ctx context.Context, asset string, price, changePct decimal.Decimal) (string, error)
	TradingStrategy(ctx context.Context, holdings []domain.AssetBalance) ([]domain.StrategyStep, error)
}

type quoteGetter interface {
	Get(ctx context.Context, id string) (domain.Quote, error)
}

type stateReader interface {
	State(ctx context.Context, accountID string) (domain.LedgerState, error)
}

// InsightService wraps the model client with placeholder fallbacks. Model
// failures never surface as errors; retry is left to the user.
type InsightService struct {
	client  InsightClient
	quotes  quoteGetter
	ledgers stateReader
	logger  *slog.Logger
}

// NewInsightService creates an InsightService.
func NewInsightService(client InsightClient, quotes quoteGetter, ledgers stateReader, logger *slog.Logger) *InsightService {
	return &InsightService{
		client:  client,
		quotes:  quotes,
		ledgers: ledgers,
		logger:  logger.With(slog.String("component", "insight_service")),
	}
}

// AnalyzeMarket returns commentary on quote id, or FallbackAnalysis if the
// model fails. Only an unknown quote is an error.
func (s *InsightService) AnalyzeMarket(ctx context.Context, id string) (string, error) {
	q, err := s.quotes.Get(ctx, id)
	if err != nil {
		return "", err
	}
	text, err := s.client.AnalyzeMarket(ctx, q.Name, q.Price, q.Change24h)
	if err != nil || text == "" {
		s.logInsightError(ctx, "analysis", err)
		return FallbackAnalysis, nil
	}
	return text, nil
}

// TradingStrategy suggests a rebalancing plan for an account's holdings,
// or an empty plan if the model fails.
func (s *InsightService) TradingStrategy(ctx context.Context, accountID string) ([]domain.StrategyStep, error) {
	state, err := s.ledgers.State(ctx, accountID)
	if err != nil {
		return nil, err
	}
	holdings := make([]domain.AssetBalance, 0, len(state.Assets))
	for _, a := range state.Assets {
		if a.Balance.IsPositive() {
			holdings = append(holdings, a)
		}
	}

	steps, err := s.client.TradingStrategy(ctx, holdings)
	if err != nil || steps == nil {
		s.logInsightError(ctx, "strategy", err)
		return []domain.StrategyStep{}, nil
	}
	return steps, nil
}

func (s *InsightService) logInsightError(ctx context.Context, kind string, err error) {
	msg := "empty response"
	if err != nil {
		msg = err.Error()
	}
	s.logger.WarnContext(ctx, "insight unavailable",
		slog.String("kind", kind),
		slog.String("error", msg),
	)
}
