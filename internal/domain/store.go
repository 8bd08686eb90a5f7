package domain

import (
	"context"
	"time"
)

// Snapshot keys. Each value is a whole-record JSON document rewritten on
// every change.
const (
	KeyUsers               = "users_db"
	KeyActiveSession       = "active_session"
	KeyCoins               = "coins_state"
	KeyExchangeStatePrefix = "exchange_state:"
)

// ExchangeStateKey returns the snapshot key of an account's ledger.
func ExchangeStateKey(accountID string) string {
	return KeyExchangeStatePrefix + accountID
}

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// SnapshotStore persists opaque JSON snapshots by key.
type SnapshotStore interface {
	// Get returns ErrNotFound when key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log, newest first on List.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
