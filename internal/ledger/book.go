// Package ledger holds the pure trade-settlement rules of a single account
// and the in-memory book that commits them.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/nexusx/nexus/internal/domain"
	"github.com/shopspring/decimal"
)

// Trade is a request to move value between cash and one asset at a fixed
// reference price.
type Trade struct {
	ID     string
	Side   domain.Side
	Symbol string
	// Name labels a holding created by a buy. Defaults to Symbol.
	Name   string
	Amount decimal.Decimal
	Price  decimal.Decimal
	At     time.Time
}

// Apply settles t against state and returns the resulting state and the
// order it produced. state is never modified; on error it is returned as is.
func Apply(state domain.LedgerState, t Trade) (domain.LedgerState, domain.Order, error) {
	if !t.Side.Valid() || t.Symbol == "" || !t.Amount.IsPositive() || !t.Price.IsPositive() {
		return state, domain.Order{}, fmt.Errorf("ledger: %s %s %s @ %s: %w",
			t.Side, t.Amount, t.Symbol, t.Price, domain.ErrInvalidTrade)
	}

	total := t.Price.Mul(t.Amount)
	next := state.Clone()

	idx := -1
	for i := range next.Assets {
		if next.Assets[i].Symbol == t.Symbol {
			idx = i
			break
		}
	}

	switch t.Side {
	case domain.SideBuy:
		if total.GreaterThan(next.CashBalance) {
			return state, domain.Order{}, fmt.Errorf("ledger: buy %s %s costs %s, cash %s: %w",
				t.Amount, t.Symbol, total, next.CashBalance, domain.ErrInsufficientFunds)
		}
		next.CashBalance = next.CashBalance.Sub(total)
		if idx < 0 {
			name := t.Name
			if name == "" {
				name = t.Symbol
			}
			next.Assets = append(next.Assets, domain.AssetBalance{
				Symbol:   t.Symbol,
				Name:     name,
				Balance:  t.Amount,
				ValueUSD: total,
			})
		} else {
			a := &next.Assets[idx]
			a.Balance = a.Balance.Add(t.Amount)
			a.ValueUSD = a.Balance.Mul(t.Price)
		}

	case domain.SideSell:
		if idx < 0 || next.Assets[idx].Balance.LessThan(t.Amount) {
			held := decimal.Zero
			if idx >= 0 {
				held = next.Assets[idx].Balance
			}
			return state, domain.Order{}, fmt.Errorf("ledger: sell %s %s, holding %s: %w",
				t.Amount, t.Symbol, held, domain.ErrInsufficientBalance)
		}
		a := &next.Assets[idx]
		a.Balance = a.Balance.Sub(t.Amount)
		a.ValueUSD = a.Balance.Mul(t.Price)
		next.CashBalance = next.CashBalance.Add(total)
	}

	order := domain.Order{
		ID:        t.ID,
		Price:     t.Price,
		Amount:    t.Amount,
		Total:     total,
		Side:      t.Side,
		Symbol:    t.Symbol,
		Timestamp: t.At,
	}
	next.Orders = append([]domain.Order{order}, next.Orders...)
	return next, order, nil
}

// Stats aggregates state. Holdings are valued at prices keyed by symbol,
// falling back to the stored dollar value for symbols without a quote.
func Stats(state domain.LedgerState, prices map[string]decimal.Decimal) domain.GlobalStats {
	volume := decimal.Zero
	for _, o := range state.Orders {
		volume = volume.Add(o.Total)
	}

	liquidity := state.CashBalance
	for _, a := range state.Assets {
		if p, ok := prices[a.Symbol]; ok {
			liquidity = liquidity.Add(a.Balance.Mul(p))
		} else {
			liquidity = liquidity.Add(a.ValueUSD)
		}
	}

	return domain.GlobalStats{
		TotalVolume:     volume,
		OrderCount:      len(state.Orders),
		SystemLiquidity: liquidity,
	}
}

// Book is the live ledger of one account. Trades against a book are
// serialized; a trade becomes visible only after its commit succeeds.
type Book struct {
	mu    sync.Mutex
	state domain.LedgerState
}

// NewBook returns a book starting from state.
func NewBook(state domain.LedgerState) *Book {
	return &Book{state: state.Clone()}
}

// State returns a copy of the current ledger.
func (b *Book) State() domain.LedgerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

// Execute applies t and hands the resulting state to commit. The book
// adopts the new state only if commit returns nil.
func (b *Book) Execute(t Trade, commit func(domain.LedgerState) error) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, order, err := Apply(b.state, t)
	if err != nil {
		return domain.Order{}, err
	}
	if commit != nil {
		if err := commit(next); err != nil {
			return domain.Order{}, fmt.Errorf("ledger: commit: %w", err)
		}
	}
	b.state = next
	return order, nil
}
