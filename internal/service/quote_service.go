package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/notify"
)

var (
	hundred = decimal.NewFromInt(100)
	// tickFactor bounds one tick to ±0.025% of the price.
	tickFactor = decimal.RequireFromString("0.0005")
	half       = decimal.RequireFromString("0.5")
)

const (
	orderBookDepth = 12
	chartPoints    = 40
)

// QuoteService is the price store. It owns the list of listed quotes,
// persists it under coins_state and mirrors every change to the quote cache
// and the "prices" bus channel.
type QuoteService struct {
	mu     sync.RWMutex
	quotes []domain.Quote

	store    domain.SnapshotStore
	cache    domain.QuoteCache
	bus      domain.SignalBus
	notifier *notify.Notifier
	rand     func() float64
	logger   *slog.Logger
}

// NewQuoteService loads the persisted quotes, or the seed listing when none
// were saved yet. cache, bus and notifier may be nil.
func NewQuoteService(
	ctx context.Context,
	store domain.SnapshotStore,
	cache domain.QuoteCache,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) (*QuoteService, error) {
	s := &QuoteService{
		store:    store,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		rand:     rand.Float64,
		logger:   logger.With(slog.String("component", "quote_service")),
	}

	data, err := store.Get(ctx, domain.KeyCoins)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.quotes = domain.SeedQuotes()
	case err != nil:
		return nil, fmt.Errorf("quote_service: load quotes: %w", err)
	default:
		if err := json.Unmarshal(data, &s.quotes); err != nil {
			return nil, fmt.Errorf("quote_service: decode quotes: %w", err)
		}
	}

	for _, q := range s.quotes {
		s.mirror(ctx, q)
	}
	return s, nil
}

// List returns every quote in listing order.
func (s *QuoteService) List(_ context.Context) []domain.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quote, len(s.quotes))
	for i, q := range s.quotes {
		out[i] = q.Clone()
	}
	return out
}

// Get returns the quote with the given id.
func (s *QuoteService) Get(_ context.Context, id string) (domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.quotes[i].Clone(), nil
	}
	return domain.Quote{}, fmt.Errorf("quote_service: quote %q: %w", id, domain.ErrNotFound)
}

// GetBySymbol returns the quote with the given ticker symbol.
func (s *QuoteService) GetBySymbol(_ context.Context, symbol string) (domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.quotes {
		if q.Symbol == symbol {
			return q.Clone(), nil
		}
	}
	return domain.Quote{}, fmt.Errorf("quote_service: symbol %q: %w", symbol, domain.ErrNotFound)
}

// Prices returns the current price of every quote keyed by symbol.
func (s *QuoteService) Prices(_ context.Context) map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.quotes))
	for _, q := range s.quotes {
		out[q.Symbol] = q.Price
	}
	return out
}

// UpdateQuote sets the price of quote id and recomputes its 24h change
// against the previous price.
func (s *QuoteService) UpdateQuote(ctx context.Context, id string, price decimal.Decimal) (domain.Quote, error) {
	if !price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("quote_service: update %q to %s: %w", id, price, domain.ErrInvalidPrice)
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.Quote{}, fmt.Errorf("quote_service: update %q: %w", id, domain.ErrNotFound)
	}
	next := s.snapshot()
	next[i] = withPrice(next[i], price)
	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.Quote{}, err
	}
	s.quotes = next
	updated := next[i].Clone()
	s.mu.Unlock()

	s.mirror(ctx, updated)
	publish(ctx, s.bus, s.logger, domain.ChannelPrices, "price_update", updated)
	return updated, nil
}

// OverridePrice is UpdateQuote on behalf of an operator; it is announced
// through the notifier.
func (s *QuoteService) OverridePrice(ctx context.Context, id string, price decimal.Decimal) (domain.Quote, error) {
	q, err := s.UpdateQuote(ctx, id, price)
	if err != nil {
		return domain.Quote{}, err
	}
	s.logger.InfoContext(ctx, "price overridden",
		slog.String("quote", id),
		slog.String("price", price.String()),
	)
	if err := s.notifier.PriceOverride(ctx, q); err != nil {
		s.logger.WarnContext(ctx, "price override notification failed", slog.String("error", err.Error()))
	}
	return q, nil
}

// AddListing lists a new market. Both id and symbol must be unused.
func (s *QuoteService) AddListing(ctx context.Context, q domain.Quote) (domain.Quote, error) {
	q.ID = strings.TrimSpace(q.ID)
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	if q.ID == "" || q.Symbol == "" {
		return domain.Quote{}, fmt.Errorf("quote_service: listing needs id and symbol: %w", domain.ErrInvalidInput)
	}
	if !q.Price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("quote_service: list %q at %s: %w", q.ID, q.Price, domain.ErrInvalidPrice)
	}
	if q.Name == "" {
		q.Name = q.Symbol
	}
	if len(q.Sparkline) == 0 {
		q.Sparkline = []decimal.Decimal{q.Price}
	}

	s.mu.Lock()
	for _, existing := range s.quotes {
		if existing.ID == q.ID || existing.Symbol == q.Symbol {
			s.mu.Unlock()
			return domain.Quote{}, fmt.Errorf("quote_service: list %q (%s): %w", q.ID, q.Symbol, domain.ErrAlreadyExists)
		}
	}
	next := append(s.snapshot(), q.Clone())
	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.Quote{}, err
	}
	s.quotes = next
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "listing added",
		slog.String("quote", q.ID),
		slog.String("symbol", q.Symbol),
	)
	s.mirror(ctx, q)
	publish(ctx, s.bus, s.logger, domain.ChannelListings, "listing_added", q)
	if err := s.notifier.ListingAdded(ctx, q); err != nil {
		s.logger.WarnContext(ctx, "listing notification failed", slog.String("error", err.Error()))
	}
	return q, nil
}

// Tick moves every price by a random step of at most ±0.025% and persists
// the result as one snapshot.
func (s *QuoteService) Tick(ctx context.Context) ([]domain.Quote, error) {
	s.mu.Lock()
	next := s.snapshot()
	for i, q := range next {
		variation := decimal.NewFromFloat(s.rand()).Sub(half).Mul(q.Price).Mul(tickFactor)
		price := q.Price.Add(variation).Round(8)
		if !price.IsPositive() {
			continue
		}
		next[i] = withPrice(q, price)
	}
	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.quotes = next
	out := s.snapshot()
	s.mu.Unlock()

	for _, q := range out {
		s.mirror(ctx, q)
	}
	publish(ctx, s.bus, s.logger, domain.ChannelPrices, "tick", out)
	return out, nil
}

// OrderBook builds a synthetic order book around the quote's price.
func (s *QuoteService) OrderBook(ctx context.Context, id string) (domain.OrderBook, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return domain.OrderBook{}, err
	}

	step := decimal.NewFromInt(2)
	if q.Price.LessThan(decimal.NewFromInt(1000)) {
		// Keep bids positive for low-priced assets.
		step = q.Price.Mul(decimal.RequireFromString("0.002"))
	}

	book := domain.OrderBook{
		QuoteID: q.ID,
		Price:   q.Price,
		Asks:    make([]domain.BookLevel, 0, orderBookDepth),
		Bids:    make([]domain.BookLevel, 0, orderBookDepth),
	}
	for i := 0; i < orderBookDepth; i++ {
		offset := step.Mul(decimal.NewFromInt(int64(i + 1)))
		book.Asks = append(book.Asks, s.level(q.Price.Add(offset), domain.SideSell))
		book.Bids = append(book.Bids, s.level(q.Price.Sub(offset), domain.SideBuy))
	}
	return book, nil
}

func (s *QuoteService) level(price decimal.Decimal, side domain.Side) domain.BookLevel {
	amount := decimal.NewFromFloat(s.rand()).Mul(half).Round(4)
	return domain.BookLevel{
		Price:  price,
		Amount: amount,
		Total:  price.Mul(amount),
		Side:   side,
	}
}

// Chart returns a mock price history of 40 points around the current price.
func (s *QuoteService) Chart(ctx context.Context, id string) ([]domain.ChartPoint, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	spread := decimal.NewFromInt(250)
	if alt := q.Price.Div(decimal.NewFromInt(20)); alt.LessThan(spread) {
		spread = alt
	}
	points := make([]domain.ChartPoint, chartPoints)
	for i := range points {
		jitter := decimal.NewFromFloat(s.rand()).Sub(half).Mul(spread).Mul(decimal.NewFromInt(2))
		points[i] = domain.ChartPoint{
			Time:  fmt.Sprintf("%d:00", i),
			Price: q.Price.Add(jitter).Round(4),
		}
	}
	return points, nil
}

// withPrice returns q moved to price, with change24h and sparkline updated.
func withPrice(q domain.Quote, price decimal.Decimal) domain.Quote {
	out := q.Clone()
	if q.Price.IsZero() {
		out.Change24h = decimal.Zero
	} else {
		out.Change24h = price.Sub(q.Price).Div(q.Price).Mul(hundred).Round(2)
	}
	out.Price = price
	out.Sparkline = append(out.Sparkline, price)
	if n := len(out.Sparkline); n > domain.SparklineLen {
		out.Sparkline = out.Sparkline[n-domain.SparklineLen:]
	}
	return out
}

// snapshot deep-copies the quote list. Callers hold s.mu.
func (s *QuoteService) snapshot() []domain.Quote {
	out := make([]domain.Quote, len(s.quotes))
	for i, q := range s.quotes {
		out[i] = q.Clone()
	}
	return out
}

func (s *QuoteService) indexOf(id string) int {
	for i, q := range s.quotes {
		if q.ID == id {
			return i
		}
	}
	return -1
}

func (s *QuoteService) persist(ctx context.Context, quotes []domain.Quote) error {
	data, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("quote_service: encode quotes: %w", err)
	}
	if err := s.store.Put(ctx, domain.KeyCoins, data); err != nil {
		return fmt.Errorf("quote_service: save quotes: %w", err)
	}
	return nil
}

func (s *QuoteService) mirror(ctx context.Context, q domain.Quote) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetQuote(ctx, q); err != nil {
		s.logger.WarnContext(ctx, "quote cache write failed",
			slog.String("quote", q.ID),
			slog.String("error", err.Error()),
		)
	}
}
