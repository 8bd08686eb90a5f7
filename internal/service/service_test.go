package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// flakyStore wraps a memory store and fails writes while failPuts is set.
type flakyStore struct {
	*memory.SnapshotStore
	mu       sync.Mutex
	failPuts bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{SnapshotStore: memory.NewSnapshotStore()}
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	f.failPuts = v
	f.mu.Unlock()
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	fail := f.failPuts
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.SnapshotStore.Put(ctx, key, data)
}

func newTestQuotes(t *testing.T, store domain.SnapshotStore, bus domain.SignalBus) *QuoteService {
	t.Helper()
	qs, err := NewQuoteService(context.Background(), store, nil, bus, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewQuoteService: %v", err)
	}
	return qs
}
