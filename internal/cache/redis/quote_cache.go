package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nexusx/nexus/internal/domain"
)

// QuoteCache implements domain.QuoteCache. Each quote is stored as a hash at
// "quote:{id}" with the JSON document in field "doc" and the current price
// in field "price", so other tools can HGET the price alone.
type QuoteCache struct {
	c *Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{c: c}
}

func (qc *QuoteCache) quoteKey(id string) string {
	return qc.c.key("quote:", id)
}

// SetQuote stores q.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", q.ID, err)
	}
	fields := map[string]any{
		"doc":   doc,
		"price": q.Price.String(),
	}
	if err := qc.c.rdb.HSet(ctx, qc.quoteKey(q.ID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.ID, err)
	}
	return nil
}

// GetQuote returns the cached quote or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, id string) (domain.Quote, error) {
	doc, err := qc.c.rdb.HGet(ctx, qc.quoteKey(id), "doc").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Quote{}, domain.ErrNotFound
		}
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", id, err)
	}
	var q domain.Quote
	if err := json.Unmarshal(doc, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: decode quote %s: %w", id, err)
	}
	return q, nil
}

// GetQuotes fetches several quotes in one pipeline. Missing ids are omitted.
func (qc *QuoteCache) GetQuotes(ctx context.Context, ids []string) (map[string]domain.Quote, error) {
	if len(ids) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qc.c.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.HGet(ctx, qc.quoteKey(id), "doc")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	out := make(map[string]domain.Quote, len(ids))
	for id, cmd := range cmds {
		doc, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var q domain.Quote
		if err := json.Unmarshal(doc, &q); err != nil {
			continue
		}
		out[id] = q
	}
	return out, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
