package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexusx/nexus/internal/domain"
)

type quoteTicker interface {
	Tick(ctx context.Context) ([]domain.Quote, error)
}

// Ticker drives the price simulation.
type Ticker struct {
	quotes   quoteTicker
	interval time.Duration
	logger   *slog.Logger
}

// NewTicker returns a Ticker calling quotes.Tick every interval.
func NewTicker(quotes quoteTicker, interval time.Duration, logger *slog.Logger) *Ticker {
	return &Ticker{
		quotes:   quotes,
		interval: interval,
		logger:   logger.With(slog.String("component", "ticker")),
	}
}

// Run ticks until ctx is done. A failed tick is logged and the next one
// proceeds as usual.
func (t *Ticker) Run(ctx context.Context) error {
	t.logger.InfoContext(ctx, "ticker started", slog.Duration("interval", t.interval))
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "ticker stopped")
			return nil
		case <-tk.C:
			quotes, err := t.quotes.Tick(ctx)
			if err != nil {
				t.logger.WarnContext(ctx, "tick failed", slog.String("error", err.Error()))
				continue
			}
			t.logger.DebugContext(ctx, "tick", slog.Int("quotes", len(quotes)))
		}
	}
}
