package middleware

import (
	"net/http"
	"sync"
	"time"
)

// IdempotencyHeader lets a client retry a trade submission safely.
const IdempotencyHeader = "Idempotency-Key"

// pruneThreshold bounds how many keys accumulate before expired ones are
// swept.
const pruneThreshold = 1024

// Dedup remembers request keys for ttl. It is safe for concurrent use.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewDedup creates a Dedup that treats a key as a duplicate if it was seen
// within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL window. A new or
// expired key is recorded and false is returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now
	if len(d.seen) > pruneThreshold {
		d.prune(now)
	}
	return false
}

// Forget releases key so it can be used again.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

func (d *Dedup) prune(now time.Time) {
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// Idempotent rejects a repeated Idempotency-Key from the same account with
// 409. The key is held while the request runs and kept only when the
// handler answers 2xx, so a failed request can be retried with the same
// key. Requests without the header pass through. Must run inside Session.
func Idempotent(d *Dedup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = AccountID(r.Context()) + "|" + key
			if d.IsDuplicate(key) {
				writeJSONError(w, http.StatusConflict, "duplicate request")
				return
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			committed := false
			defer func() {
				if !committed {
					d.Forget(key)
				}
			}()
			next.ServeHTTP(rw, r)
			committed = rw.statusCode >= 200 && rw.statusCode < 300
		})
	}
}
