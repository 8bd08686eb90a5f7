package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether a trade is a buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Order is an immutable record of one completed simulated trade.
// Total is always Price * Amount.
type Order struct {
	ID        string          `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Total     decimal.Decimal `json:"total"`
	Side      Side            `json:"side"`
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
}

// AccountOrder tags an order with the ledger account it belongs to. It is
// used by the admin trade log, which spans every account.
type AccountOrder struct {
	AccountID string `json:"accountId"`
	Order
}

// TradeExecuted is published after a trade has been committed.
type TradeExecuted struct {
	AccountID string `json:"accountId"`
	Order     Order  `json:"order"`
}

// TradeRequest asks to trade amount of symbol at the current quote.
type TradeRequest struct {
	Side   Side            `json:"side"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}
