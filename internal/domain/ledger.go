package domain

import "github.com/shopspring/decimal"

// DemoAccountID owns the ledger used when a request carries no identity.
const DemoAccountID = "demo"

// AssetBalance is one holding of a ledger. Balance never goes below zero as
// the result of a trade. ValueUSD is the last-known dollar value, refreshed
// on every trade of the asset.
type AssetBalance struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	ValueUSD decimal.Decimal `json:"valueUsd"`
}

// LedgerState is the persisted snapshot of one account: cash, holdings
// unique by symbol, and orders most-recent-first.
type LedgerState struct {
	CashBalance decimal.Decimal `json:"cashBalance"`
	Assets      []AssetBalance  `json:"assets"`
	Orders      []Order         `json:"orders"`
}

// Clone returns a deep copy of s.
func (s LedgerState) Clone() LedgerState {
	out := LedgerState{CashBalance: s.CashBalance}
	if s.Assets != nil {
		out.Assets = make([]AssetBalance, len(s.Assets))
		copy(out.Assets, s.Assets)
	}
	if s.Orders != nil {
		out.Orders = make([]Order, len(s.Orders))
		copy(out.Orders, s.Orders)
	}
	return out
}

// Asset returns the holding for symbol, if any.
func (s LedgerState) Asset(symbol string) (AssetBalance, bool) {
	for _, a := range s.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return AssetBalance{}, false
}

// GlobalStats aggregates a ledger snapshot for the admin console.
type GlobalStats struct {
	TotalVolume     decimal.Decimal `json:"totalVolume"`
	OrderCount      int             `json:"orderCount"`
	SystemLiquidity decimal.Decimal `json:"systemLiquidity"`
	UserCount       int             `json:"userCount"`
}

// WalletAsset is a non-empty holding valued at the current quote.
type WalletAsset struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	ValueUSD decimal.Decimal `json:"valueUsd"`
}

// Wallet is the wallet view of one account.
type Wallet struct {
	AccountID   string          `json:"accountId"`
	CashBalance decimal.Decimal `json:"cashBalance"`
	Assets      []WalletAsset   `json:"assets"`
	TotalUSD    decimal.Decimal `json:"totalUsd"`
}
