package domain

import "github.com/shopspring/decimal"

// SparklineLen is the number of recent prices kept on a quote.
const SparklineLen = 6

// Quote is the current market price and derived statistics for one
// tradable asset.
type Quote struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Price     decimal.Decimal   `json:"price"`
	Change24h decimal.Decimal   `json:"change24h"`
	Volume24h decimal.Decimal   `json:"volume24h"`
	MarketCap decimal.Decimal   `json:"marketCap"`
	Sparkline []decimal.Decimal `json:"sparkline"`
}

// Clone returns a copy of q that shares no slices with it.
func (q Quote) Clone() Quote {
	out := q
	if q.Sparkline != nil {
		out.Sparkline = make([]decimal.Decimal, len(q.Sparkline))
		copy(out.Sparkline, q.Sparkline)
	}
	return out
}

// BookLevel is one synthetic resting order in a mock order book.
type BookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Total  decimal.Decimal `json:"total"`
	Side   Side            `json:"side"`
}

// OrderBook is the simulated depth around a quote's current price.
type OrderBook struct {
	QuoteID string          `json:"quoteId"`
	Price   decimal.Decimal `json:"price"`
	Asks    []BookLevel     `json:"asks"`
	Bids    []BookLevel     `json:"bids"`
}

// ChartPoint is one point of the mock price chart.
type ChartPoint struct {
	Time  string          `json:"time"`
	Price decimal.Decimal `json:"price"`
}
