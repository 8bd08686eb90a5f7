// Package notify forwards exchange events to chat webhooks. Every configured
// sender receives each event that passes the event filter.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexusx/nexus/internal/domain"
)

// Event types.
const (
	EventTradeExecuted = "trade_executed"
	EventListingAdded  = "listing_added"
	EventPriceOverride = "price_override"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches events to its senders. A nil *Notifier is valid and
// drops everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are
// forwarded; an empty list forwards all of them.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// TradeExecuted announces a committed trade.
func (n *Notifier) TradeExecuted(ctx context.Context, accountID string, o domain.Order) error {
	title := fmt.Sprintf("%s %s %s", strings.ToUpper(string(o.Side)), o.Amount, o.Symbol)
	msg := fmt.Sprintf("account %s filled at %s (total %s)", accountID, o.Price, o.Total.StringFixed(2))
	return n.Notify(ctx, EventTradeExecuted, title, msg)
}

// ListingAdded announces a new market.
func (n *Notifier) ListingAdded(ctx context.Context, q domain.Quote) error {
	title := "New listing: " + q.Symbol
	msg := fmt.Sprintf("%s (%s) listed at %s", q.Name, q.ID, q.Price)
	return n.Notify(ctx, EventListingAdded, title, msg)
}

// PriceOverride announces a manual price change.
func (n *Notifier) PriceOverride(ctx context.Context, q domain.Quote) error {
	title := "Price override: " + q.Symbol
	msg := fmt.Sprintf("%s set to %s (%s%%)", q.Name, q.Price, q.Change24h.StringFixed(2))
	return n.Notify(ctx, EventPriceOverride, title, msg)
}

// Notify sends title and message to every sender if event passes the
// filter. Sender failures are collected; one failing sender does not stop
// the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
