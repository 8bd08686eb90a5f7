package domain

import "github.com/shopspring/decimal"

// DefaultStartingCash is granted to every newly registered identity.
var DefaultStartingCash = decimal.NewFromInt(10000)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ds(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = d(v)
	}
	return out
}

// SeedQuotes returns the markets listed on a fresh install.
func SeedQuotes() []Quote {
	return []Quote{
		{
			ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin",
			Price: d("64230.45"), Change24h: d("1.25"),
			Volume24h: d("35000000000"), MarketCap: d("1200000000000"),
			Sparkline: ds("62000", "62500", "63000", "62800", "63500", "64230"),
		},
		{
			ID: "ethereum", Symbol: "ETH", Name: "Ethereum",
			Price: d("3450.12"), Change24h: d("-0.45"),
			Volume24h: d("18000000000"), MarketCap: d("400000000000"),
			Sparkline: ds("3500", "3480", "3460", "3490", "3470", "3450"),
		},
		{
			ID: "solana", Symbol: "SOL", Name: "Solana",
			Price: d("145.67"), Change24h: d("4.82"),
			Volume24h: d("4000000000"), MarketCap: d("65000000000"),
			Sparkline: ds("130", "135", "138", "142", "144", "145"),
		},
		{
			ID: "binancecoin", Symbol: "BNB", Name: "BNB",
			Price: d("580.32"), Change24h: d("0.15"),
			Volume24h: d("1200000000"), MarketCap: d("88000000000"),
			Sparkline: ds("570", "575", "582", "579", "581", "580"),
		},
		{
			ID: "cardano", Symbol: "ADA", Name: "Cardano",
			Price: d("0.452"), Change24h: d("-1.2"),
			Volume24h: d("450000000"), MarketCap: d("16000000000"),
			Sparkline: ds("0.46", "0.458", "0.455", "0.453", "0.452", "0.452"),
		},
	}
}

// DemoLedger returns the ledger owned by the demo account on a fresh
// install.
func DemoLedger() LedgerState {
	return LedgerState{
		CashBalance: d("12450"),
		Assets: []AssetBalance{
			{Symbol: "BTC", Name: "Bitcoin", Balance: d("0.245"), ValueUSD: d("15736.46")},
			{Symbol: "ETH", Name: "Ethereum", Balance: d("4.5"), ValueUSD: d("15525.54")},
			{Symbol: "SOL", Name: "Solana", Balance: d("50"), ValueUSD: d("7283.50")},
			{Symbol: "USDT", Name: "Tether", Balance: d("2500"), ValueUSD: d("2500.00")},
		},
		Orders: []Order{},
	}
}

// EmptyLedger returns a ledger holding only cash.
func EmptyLedger(cash decimal.Decimal) LedgerState {
	return LedgerState{CashBalance: cash, Assets: []AssetBalance{}, Orders: []Order{}}
}
