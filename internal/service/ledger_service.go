package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/ledger"
	"github.com/nexusx/nexus/internal/notify"
)

const (
	defaultLockTTL    = 5 * time.Second
	lockRetryInterval = 20 * time.Millisecond
)

// QuoteLookup is the part of the price store the ledger reads.
type QuoteLookup interface {
	GetBySymbol(ctx context.Context, symbol string) (domain.Quote, error)
	Prices(ctx context.Context) map[string]decimal.Decimal
}

// LedgerService owns one ledger.Book per account. Trades on an account are
// serialized by its book; with a LockManager attached they are also
// serialized across processes, and the book is reloaded from the store
// under the lock.
type LedgerService struct {
	store  domain.SnapshotStore
	quotes QuoteLookup
	logger *slog.Logger

	locks    domain.LockManager
	lockTTL  time.Duration
	bus      domain.SignalBus
	events   domain.EventPublisher
	audit    domain.AuditStore
	notifier *notify.Notifier

	mu    sync.Mutex
	books map[string]*ledger.Book

	newID func() string
	now   func() time.Time
}

// NewLedgerService creates a LedgerService. Optional collaborators are
// attached with the With* methods.
func NewLedgerService(store domain.SnapshotStore, quotes QuoteLookup, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:   store,
		quotes:  quotes,
		logger:  logger.With(slog.String("component", "ledger_service")),
		lockTTL: defaultLockTTL,
		books:   make(map[string]*ledger.Book),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithLocks guards each trade with a lock named "ledger:{account}".
func (s *LedgerService) WithLocks(locks domain.LockManager, ttl time.Duration) *LedgerService {
	s.locks = locks
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// WithBus publishes committed trades on the "trades" channel.
func (s *LedgerService) WithBus(bus domain.SignalBus) *LedgerService {
	s.bus = bus
	return s
}

// WithEvents ships committed trades to an external event log.
func (s *LedgerService) WithEvents(events domain.EventPublisher) *LedgerService {
	s.events = events
	return s
}

// WithAudit records committed trades in the audit log.
func (s *LedgerService) WithAudit(audit domain.AuditStore) *LedgerService {
	s.audit = audit
	return s
}

// WithNotifier announces committed trades.
func (s *LedgerService) WithNotifier(n *notify.Notifier) *LedgerService {
	s.notifier = n
	return s
}

// OpenAccount creates an empty ledger holding cash for accountID. Opening
// an existing account is a no-op.
func (s *LedgerService) OpenAccount(ctx context.Context, accountID string, cash decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[accountID]; ok {
		return nil
	}
	state, err := s.load(ctx, accountID)
	if err == nil {
		s.books[accountID] = ledger.NewBook(state)
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	state = domain.EmptyLedger(cash)
	if err := s.save(ctx, accountID, state); err != nil {
		return err
	}
	s.books[accountID] = ledger.NewBook(state)
	s.logger.InfoContext(ctx, "account opened",
		slog.String("account", accountID),
		slog.String("cash", cash.String()),
	)
	return nil
}

// ExecuteTrade trades at the current quote of req.Symbol.
func (s *LedgerService) ExecuteTrade(ctx context.Context, accountID string, req domain.TradeRequest) (domain.Order, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	q, err := s.quotes.GetBySymbol(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("ledger_service: unknown symbol %q: %w", req.Symbol, domain.ErrInvalidTrade)
		}
		return domain.Order{}, fmt.Errorf("ledger_service: quote %q: %w", req.Symbol, err)
	}
	return s.ExecuteTradeAt(ctx, accountID, req, q.Name, q.Price)
}

// ExecuteTradeAt trades at an explicit reference price. name labels the
// holding if the trade creates one.
func (s *LedgerService) ExecuteTradeAt(ctx context.Context, accountID string, req domain.TradeRequest, name string, price decimal.Decimal) (domain.Order, error) {
	if s.locks != nil {
		unlock, err := s.acquire(ctx, accountID)
		if err != nil {
			return domain.Order{}, err
		}
		defer unlock()
	}

	b, err := s.book(ctx, accountID, s.locks != nil)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := b.Execute(ledger.Trade{
		ID:     s.newID(),
		Side:   req.Side,
		Symbol: strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Name:   name,
		Amount: req.Amount,
		Price:  price,
		At:     s.now(),
	}, func(next domain.LedgerState) error {
		return s.save(ctx, accountID, next)
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.InfoContext(ctx, "trade executed",
		slog.String("account", accountID),
		slog.String("order", order.ID),
		slog.String("side", string(order.Side)),
		slog.String("symbol", order.Symbol),
		slog.String("amount", order.Amount.String()),
		slog.String("price", order.Price.String()),
	)
	s.afterTrade(ctx, accountID, order)
	return order, nil
}

// afterTrade fans a committed order out to the optional sinks. None of
// them can undo the trade, so failures are only logged.
func (s *LedgerService) afterTrade(ctx context.Context, accountID string, order domain.Order) {
	evt := domain.TradeExecuted{AccountID: accountID, Order: order}
	publish(ctx, s.bus, s.logger, domain.ChannelTrades, "trade_executed", evt)

	if s.events != nil {
		if err := s.events.PublishTradeExecuted(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "trade event publish failed",
				slog.String("order", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, "trade.executed", map[string]any{
			"account": accountID,
			"order":   order.ID,
			"side":    order.Side,
			"symbol":  order.Symbol,
			"amount":  order.Amount.String(),
			"price":   order.Price.String(),
		}); err != nil {
			s.logger.WarnContext(ctx, "trade audit failed", slog.String("error", err.Error()))
		}
	}
	if err := s.notifier.TradeExecuted(ctx, accountID, order); err != nil {
		s.logger.WarnContext(ctx, "trade notification failed", slog.String("error", err.Error()))
	}
}

// State returns a copy of an account's ledger.
func (s *LedgerService) State(ctx context.Context, accountID string) (domain.LedgerState, error) {
	b, err := s.book(ctx, accountID, false)
	if err != nil {
		return domain.LedgerState{}, err
	}
	return b.State(), nil
}

// Orders returns an account's orders, most recent first.
func (s *LedgerService) Orders(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	state, err := s.State(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return paginate(state.Orders, opts), nil
}

// GlobalStats aggregates an account's ledger, valuing holdings at current
// quotes. It does not mutate anything.
func (s *LedgerService) GlobalStats(ctx context.Context, accountID string) (domain.GlobalStats, error) {
	state, err := s.State(ctx, accountID)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	return ledger.Stats(state, s.quotes.Prices(ctx)), nil
}

// SystemStats sums GlobalStats over every account.
func (s *LedgerService) SystemStats(ctx context.Context) (domain.GlobalStats, error) {
	ids, err := s.Accounts(ctx)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	prices := s.quotes.Prices(ctx)

	var total domain.GlobalStats
	for _, id := range ids {
		state, err := s.State(ctx, id)
		if err != nil {
			return domain.GlobalStats{}, err
		}
		st := ledger.Stats(state, prices)
		total.TotalVolume = total.TotalVolume.Add(st.TotalVolume)
		total.OrderCount += st.OrderCount
		total.SystemLiquidity = total.SystemLiquidity.Add(st.SystemLiquidity)
	}
	return total, nil
}

// Wallet lists an account's non-empty holdings valued at current quotes.
func (s *LedgerService) Wallet(ctx context.Context, accountID string) (domain.Wallet, error) {
	state, err := s.State(ctx, accountID)
	if err != nil {
		return domain.Wallet{}, err
	}
	prices := s.quotes.Prices(ctx)

	w := domain.Wallet{
		AccountID:   accountID,
		CashBalance: state.CashBalance,
		Assets:      []domain.WalletAsset{},
		TotalUSD:    state.CashBalance,
	}
	for _, a := range state.Assets {
		if !a.Balance.IsPositive() {
			continue
		}
		value := a.ValueUSD
		if p, ok := prices[a.Symbol]; ok {
			value = a.Balance.Mul(p)
		}
		w.Assets = append(w.Assets, domain.WalletAsset{
			Symbol:   a.Symbol,
			Name:     a.Name,
			Balance:  a.Balance,
			ValueUSD: value,
		})
		w.TotalUSD = w.TotalUSD.Add(value)
	}
	return w, nil
}

// Accounts lists every account with a ledger, including the demo account.
func (s *LedgerService) Accounts(ctx context.Context) ([]string, error) {
	keys, err := s.store.Keys(ctx, domain.KeyExchangeStatePrefix)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list accounts: %w", err)
	}

	seen := map[string]bool{domain.DemoAccountID: true}
	for _, k := range keys {
		seen[strings.TrimPrefix(k, domain.KeyExchangeStatePrefix)] = true
	}
	s.mu.Lock()
	for id := range s.books {
		seen[id] = true
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AllOrders merges the orders of every account, most recent first.
func (s *LedgerService) AllOrders(ctx context.Context, opts domain.ListOpts) ([]domain.AccountOrder, error) {
	ids, err := s.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	var all []domain.AccountOrder
	for _, id := range ids {
		state, err := s.State(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, o := range state.Orders {
			all = append(all, domain.AccountOrder{AccountID: id, Order: o})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	return paginate(all, opts), nil
}

// acquire waits up to the lock TTL for the account's lock.
func (s *LedgerService) acquire(ctx context.Context, accountID string) (func(), error) {
	key := "ledger:" + accountID
	deadline := time.Now().Add(s.lockTTL)
	for {
		unlock, err := s.locks.Acquire(ctx, key, s.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) || time.Now().After(deadline) {
			return nil, fmt.Errorf("ledger_service: lock %s: %w", accountID, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ledger_service: lock %s: %w", accountID, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}

// book returns the cached book of accountID, loading it on first use or
// when fresh is set.
func (s *LedgerService) book(ctx context.Context, accountID string, fresh bool) (*ledger.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.books[accountID]; ok && !fresh {
		return b, nil
	}

	state, err := s.load(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) && accountID == domain.DemoAccountID {
		state, err = domain.DemoLedger(), nil
	}
	if err != nil {
		return nil, err
	}

	b := ledger.NewBook(state)
	s.books[accountID] = b
	return b, nil
}

func (s *LedgerService) load(ctx context.Context, accountID string) (domain.LedgerState, error) {
	data, err := s.store.Get(ctx, domain.ExchangeStateKey(accountID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.LedgerState{}, fmt.Errorf("ledger_service: account %q: %w", accountID, domain.ErrNotFound)
		}
		return domain.LedgerState{}, fmt.Errorf("ledger_service: load %s: %w", accountID, err)
	}
	var state domain.LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.LedgerState{}, fmt.Errorf("ledger_service: decode %s: %w", accountID, err)
	}
	return state, nil
}

func (s *LedgerService) save(ctx context.Context, accountID string, state domain.LedgerState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ledger_service: encode %s: %w", accountID, err)
	}
	if err := s.store.Put(ctx, domain.ExchangeStateKey(accountID), data); err != nil {
		return fmt.Errorf("ledger_service: save %s: %w", accountID, err)
	}
	return nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
