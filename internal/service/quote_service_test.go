package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	cachemem "github.com/nexusx/nexus/internal/cache/memory"
	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/store/memory"
)

func TestQuoteServiceSeeds(t *testing.T) {
	qs := newTestQuotes(t, memory.NewSnapshotStore(), nil)
	quotes := qs.List(context.Background())
	if len(quotes) != 5 {
		t.Fatalf("seeded %d quotes, want 5", len(quotes))
	}
	btc, err := qs.GetBySymbol(context.Background(), "BTC")
	if err != nil || btc.ID != "bitcoin" || !btc.Price.Equal(dec("64230.45")) {
		t.Errorf("BTC = %+v, %v", btc, err)
	}
}

func TestUpdateQuoteRecomputesChange(t *testing.T) {
	ctx := context.Background()
	qs := newTestQuotes(t, memory.NewSnapshotStore(), nil)
	if _, err := qs.AddListing(ctx, domain.Quote{ID: "test", Symbol: "TST", Price: dec("100")}); err != nil {
		t.Fatalf("AddListing: %v", err)
	}

	q, err := qs.UpdateQuote(ctx, "test", dec("105"))
	if err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}
	if !q.Price.Equal(dec("105")) {
		t.Errorf("price = %s", q.Price)
	}
	if !q.Change24h.Equal(dec("5")) {
		t.Errorf("change = %s, want 5.00", q.Change24h)
	}

	q, _ = qs.UpdateQuote(ctx, "test", dec("100"))
	if !q.Change24h.Equal(dec("-4.76")) {
		t.Errorf("change = %s, want -4.76", q.Change24h)
	}
}

func TestUpdateQuoteKeepsSparklineWindow(t *testing.T) {
	ctx := context.Background()
	qs := newTestQuotes(t, memory.NewSnapshotStore(), nil)

	q, err := qs.UpdateQuote(ctx, "bitcoin", dec("65000"))
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Sparkline) != domain.SparklineLen {
		t.Fatalf("sparkline len = %d", len(q.Sparkline))
	}
	if !q.Sparkline[len(q.Sparkline)-1].Equal(dec("65000")) || !q.Sparkline[0].Equal(dec("62500")) {
		t.Errorf("sparkline = %v", q.Sparkline)
	}
}

func TestUpdateQuoteRejects(t *testing.T) {
	ctx := context.Background()
	qs := newTestQuotes(t, memory.NewSnapshotStore(), nil)

	for _, p := range []string{"0", "-1"} {
		if _, err := qs.UpdateQuote(ctx, "bitcoin", dec(p)); !errors.Is(err, domain.ErrInvalidPrice) {
			t.Errorf("price %s: err = %v, want ErrInvalidPrice", p, err)
		}
	}
	if _, err := qs.UpdateQuote(ctx, "dogecoin", dec("1")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown quote: err = %v", err)
	}
	if btc, _ := qs.Get(ctx, "bitcoin"); !btc.Price.Equal(dec("64230.45")) {
		t.Errorf("rejected update changed price to %s", btc.Price)
	}
}

func TestUpdateQuotePersistence(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	qs := newTestQuotes(t, store, nil)

	if _, err := qs.UpdateQuote(ctx, "ethereum", dec("3500")); err != nil {
		t.Fatal(err)
	}
	reloaded := newTestQuotes(t, store, nil)
	if eth, _ := reloaded.Get(ctx, "ethereum"); !eth.Price.Equal(dec("3500")) {
		t.Errorf("reloaded ETH = %s, want 3500", eth.Price)
	}

	store.setFail(true)
	if _, err := qs.UpdateQuote(ctx, "ethereum", dec("3600")); err == nil {
		t.Fatal("expected persistence error")
	}
	if eth, _ := qs.Get(ctx, "ethereum"); !eth.Price.Equal(dec("3500")) {
		t.Errorf("failed update left ETH at %s", eth.Price)
	}
}

func TestTickIsBounded(t *testing.T) {
	ctx := context.Background()
	qs := newTestQuotes(t, memory.NewSnapshotStore(), nil)
	before := qs.Prices(ctx)

	qs.rand = func() float64 { return 1 }
	quotes, err := qs.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	btc := quotes[0]
	if want := dec("64246.5076125"); !btc.Price.Equal(want) {
		t.Errorf("BTC after max tick = %s, want %s", btc.Price, want)
	}

	qs.rand = func() float64 { return 0.3 }
	quotes, _ = qs.Tick(ctx)
	for _, q := range quotes {
		old := before[q.Symbol]
		limit := old.Mul(dec("0.0006"))
		if q.Price.Sub(old).Abs().GreaterThan(limit) {
			t.Errorf("%s moved from %s to %s", q.Symbol, old, q.Price)
		}
		if !q.Price.IsPositive() {
			t.Errorf("%s price %s not positive", q.Symbol, q.Price)
		}
	}
}

func TestAddListing(t *testing.T) {
	ctx := context.Background()
	qs := newTestQuotes(t, memory.NewSnapshotStore(), nil)

	q, err := qs.AddListing(ctx, domain.Quote{ID: "dogecoin", Symbol: "doge", Price: dec("0.12")})
	if err != nil {
		t.Fatalf("AddListing: %v", err)
	}
	if q.Symbol != "DOGE" || q.Name != "DOGE" || len(q.Sparkline) != 1 {
		t.Errorf("listing = %+v", q)
	}

	tests := []struct {
		name string
		q    domain.Quote
		want error
	}{
		{"dup id", domain.Quote{ID: "dogecoin", Symbol: "DOG2", Price: dec("1")}, domain.ErrAlreadyExists},
		{"dup symbol", domain.Quote{ID: "bitcoin-2", Symbol: "BTC", Price: dec("1")}, domain.ErrAlreadyExists},
		{"no price", domain.Quote{ID: "x", Symbol: "X"}, domain.ErrInvalidPrice},
		{"no id", domain.Quote{Symbol: "Y", Price: dec("1")}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		if _, err := qs.AddListing(ctx, tt.q); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
	if n := len(qs.List(ctx)); n != 6 {
		t.Errorf("quote count = %d, want 6", n)
	}
}

func TestOrderBookAndChart(t *testing.T) {
	ctx := context.Background()
	qs := newTestQuotes(t, memory.NewSnapshotStore(), nil)
	qs.rand = func() float64 { return 0.5 }

	for _, id := range []string{"bitcoin", "cardano"} {
		book, err := qs.OrderBook(ctx, id)
		if err != nil {
			t.Fatalf("OrderBook(%s): %v", id, err)
		}
		if len(book.Asks) != 12 || len(book.Bids) != 12 {
			t.Fatalf("%s depth = %d/%d", id, len(book.Asks), len(book.Bids))
		}
		for i, lvl := range book.Bids {
			if !lvl.Price.IsPositive() || !lvl.Price.LessThan(book.Price) {
				t.Errorf("%s bid %d price %s", id, i, lvl.Price)
			}
			if !lvl.Total.Equal(lvl.Price.Mul(lvl.Amount)) {
				t.Errorf("%s bid %d total mismatch", id, i)
			}
		}
		if !book.Asks[0].Price.GreaterThan(book.Price) {
			t.Errorf("%s best ask %s not above %s", id, book.Asks[0].Price, book.Price)
		}
	}

	btc, _ := qs.OrderBook(ctx, "bitcoin")
	if !btc.Asks[0].Price.Equal(dec("64232.45")) || !btc.Bids[11].Price.Equal(dec("64206.45")) {
		t.Errorf("BTC levels = %s .. %s", btc.Asks[0].Price, btc.Bids[11].Price)
	}

	points, err := qs.Chart(ctx, "bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 40 || points[39].Time != "39:00" {
		t.Errorf("chart = %d points, last %q", len(points), points[len(points)-1].Time)
	}

	if _, err := qs.OrderBook(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown book: err = %v", err)
	}
}

func TestUpdateQuotePublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := cachemem.NewSignalBus()
	ch, _ := bus.Subscribe(ctx, domain.ChannelPrices)
	qs := newTestQuotes(t, memory.NewSnapshotStore(), bus)

	if _, err := qs.UpdateQuote(ctx, "solana", dec("150")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		var evt struct {
			Event string       `json:"event"`
			Data  domain.Quote `json:"data"`
		}
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatal(err)
		}
		if evt.Event != "price_update" || evt.Data.ID != "solana" {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no price event")
	}
}
