package middleware

import (
	"context"
	"net/http"

	"github.com/nexusx/nexus/internal/domain"
)

// SessionHeader carries the signed session token issued at login.
const SessionHeader = "X-Session-Token"

// TokenVerifier maps a session token to the identity it was issued to.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ActiveSession reports the process-wide active identity.
type ActiveSession interface {
	Active(ctx context.Context) (domain.Identity, error)
}

type accountKey struct{}

// WithAccount returns a copy of ctx carrying the ledger account id.
func WithAccount(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey{}, accountID)
}

// AccountID returns the ledger account resolved for the request, or the
// demo account.
func AccountID(ctx context.Context) string {
	if id, ok := ctx.Value(accountKey{}).(string); ok && id != "" {
		return id
	}
	return domain.DemoAccountID
}

// Session resolves the ledger account of each request: a valid
// X-Session-Token wins, then the active session, then the demo account. A
// token that fails verification is rejected with 401.
func Session(tokens TokenVerifier, sessions ActiveSession) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			accountID := domain.DemoAccountID

			if token := r.Header.Get(SessionHeader); token != "" && tokens != nil {
				id, err := tokens.Verify(token)
				if err != nil {
					writeJSONError(w, http.StatusUnauthorized, "invalid session token")
					return
				}
				accountID = id
			} else if sessions != nil {
				if ident, err := sessions.Active(ctx); err == nil {
					accountID = ident.ID
				}
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(ctx, accountID)))
		})
	}
}
