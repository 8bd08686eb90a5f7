package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nexusx/nexus/internal/domain"
)

// ArchivePrefix is the key prefix under which ledgers are archived.
const ArchivePrefix = "ledgers/"

// LedgerSource is the read side of the ledger the archiver needs.
type LedgerSource interface {
	Accounts(ctx context.Context) ([]string, error)
	State(ctx context.Context, accountID string) (domain.LedgerState, error)
}

// LedgerArchiver exports every account's order history to object storage
// as JSONL, one file per account per day. Archived orders stay in the
// ledger.
type LedgerArchiver struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	ledgers LedgerSource
	audit   domain.AuditStore
	now     func() time.Time
}

// NewLedgerArchiver creates a LedgerArchiver. audit may be nil.
func NewLedgerArchiver(writer domain.BlobWriter, reader domain.BlobReader, ledgers LedgerSource, audit domain.AuditStore) *LedgerArchiver {
	return &LedgerArchiver{
		writer:  writer,
		reader:  reader,
		ledgers: ledgers,
		audit:   audit,
		now:     time.Now,
	}
}

// ArchivePath returns the object key of accountID's archive for day.
//
//	ledgers/demo/2026-01-02.jsonl
func ArchivePath(accountID string, day time.Time) string {
	return fmt.Sprintf("%s%s/%s.jsonl", ArchivePrefix, accountID, day.UTC().Format("2006-01-02"))
}

// Archive uploads the orders of every account that has any. Re-running on
// the same day overwrites that day's files.
func (a *LedgerArchiver) Archive(ctx context.Context) (domain.ArchiveResult, error) {
	accounts, err := a.ledgers.Accounts(ctx)
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("s3blob: archive list accounts: %w", err)
	}

	day := a.now()
	var res domain.ArchiveResult
	for _, id := range accounts {
		state, err := a.ledgers.State(ctx, id)
		if err != nil {
			return res, fmt.Errorf("s3blob: archive load %s: %w", id, err)
		}
		if len(state.Orders) == 0 {
			continue
		}

		buf, err := marshalJSONL(state.Orders)
		if err != nil {
			return res, fmt.Errorf("s3blob: archive marshal %s: %w", id, err)
		}
		path := ArchivePath(id, day)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return res, fmt.Errorf("s3blob: archive upload %s: %w", id, err)
		}

		res.Accounts++
		res.Orders += len(state.Orders)
		res.Paths = append(res.Paths, path)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.ledgers", map[string]any{
			"accounts": res.Accounts,
			"orders":   res.Orders,
			"day":      day.UTC().Format("2006-01-02"),
		}); err != nil {
			return res, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return res, nil
}

// List returns archived files, optionally restricted to one account.
func (a *LedgerArchiver) List(ctx context.Context, accountID string) ([]domain.BlobInfo, error) {
	prefix := ArchivePrefix
	if accountID = strings.Trim(accountID, "/"); accountID != "" {
		prefix += accountID + "/"
	}
	infos, err := a.reader.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: list archives: %w", err)
	}
	return infos, nil
}

func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
