package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nexusx/nexus/internal/domain"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Account", AccountID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAdminAuth(t *testing.T) {
	h := AdminAuth("secret")(okHandler())

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"api key", "X-API-Key", "secret", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer secret", http.StatusNoContent},
		{"basic scheme", "Authorization", "Basic secret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	open := AdminAuth("")(okHandler())
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("open admin status = %d", rec.Code)
	}
}

type stubTokens map[string]string

func (s stubTokens) Verify(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

type stubActive struct{ id string }

func (s stubActive) Active(context.Context) (domain.Identity, error) {
	if s.id == "" {
		return domain.Identity{}, domain.ErrNotFound
	}
	return domain.Identity{ID: s.id}, nil
}

func TestSessionResolution(t *testing.T) {
	tokens := stubTokens{"tok": "user-1"}

	tests := []struct {
		name    string
		active  string
		token   string
		want    string
		wantErr bool
	}{
		{name: "demo fallback", want: domain.DemoAccountID},
		{name: "active session", active: "user-2", want: "user-2"},
		{name: "token wins", active: "user-2", token: "tok", want: "user-1"},
		{name: "bad token", token: "forged", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Session(tokens, stubActive{id: tt.active})(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
			if tt.token != "" {
				req.Header.Set(SessionHeader, tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if tt.wantErr {
				if rec.Code != http.StatusUnauthorized {
					t.Errorf("status = %d, want 401", rec.Code)
				}
				return
			}
			if got := rec.Header().Get("X-Account"); got != tt.want {
				t.Errorf("account = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDedupExpires(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	if d.IsDuplicate("a") {
		t.Fatal("first sight reported as duplicate")
	}
	if !d.IsDuplicate("a") {
		t.Fatal("repeat within ttl not detected")
	}
	now = now.Add(2 * time.Minute)
	if d.IsDuplicate("a") {
		t.Fatal("expired key reported as duplicate")
	}
}

func TestIdempotentPerAccount(t *testing.T) {
	h := Session(stubTokens{"t1": "u1", "t2": "u2"}, nil)(Idempotent(NewDedup(time.Minute))(okHandler()))

	send := func(token, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/trades", nil)
		req.Header.Set(SessionHeader, token)
		if key != "" {
			req.Header.Set(IdempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("t1", "k"); got != http.StatusNoContent {
		t.Fatalf("first = %d", got)
	}
	if got := send("t1", "k"); got != http.StatusConflict {
		t.Errorf("replay = %d, want 409", got)
	}
	if got := send("t2", "k"); got != http.StatusNoContent {
		t.Errorf("other account = %d", got)
	}
	if got := send("t1", ""); got != http.StatusNoContent {
		t.Errorf("no key = %d", got)
	}
}

func TestIdempotentReleasesKeyOnFailure(t *testing.T) {
	status := http.StatusUnprocessableEntity
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	})
	h := Idempotent(NewDedup(time.Minute))(next)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/trades", nil)
		req.Header.Set(IdempotencyHeader, "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send(); got != http.StatusUnprocessableEntity {
		t.Fatalf("first = %d", got)
	}
	status = http.StatusCreated
	if got := send(); got != http.StatusCreated {
		t.Fatalf("retry after failure = %d, want 201", got)
	}
	if got := send(); got != http.StatusConflict {
		t.Errorf("replay after success = %d, want 409", got)
	}
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}

func TestIdempotentReleasesKeyOnPanic(t *testing.T) {
	d := NewDedup(time.Minute)
	h := Idempotent(d)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() { _ = recover() }()
		req := httptest.NewRequest(http.MethodPost, "/api/trades", nil)
		req.Header.Set(IdempotencyHeader, "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}()
	if d.IsDuplicate(domain.DemoAccountID + "|k") {
		t.Error("key still held after a panicking handler")
	}
}
