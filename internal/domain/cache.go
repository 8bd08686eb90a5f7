package domain

import (
	"context"
	"time"
)

// QuoteCache mirrors the latest quotes for readers outside this process.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, id string) (Quote, error)
	GetQuotes(ctx context.Context, ids []string) (map[string]Quote, error)
}

// RateLimiter provides sliding-window rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides mutual exclusion across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Bus channels.
const (
	ChannelPrices   = "prices"
	ChannelTrades   = "trades"
	ChannelListings = "listings"
)

// SignalBus provides fire-and-forget pub/sub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// EventPublisher ships committed trades to an external log.
type EventPublisher interface {
	PublishTradeExecuted(ctx context.Context, evt TradeExecuted) error
	Close() error
}
