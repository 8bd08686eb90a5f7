package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nexusx/nexus/internal/domain"
)

// AdminLedger is the system-wide ledger view of the admin console.
type AdminLedger interface {
	SystemStats(ctx context.Context) (domain.GlobalStats, error)
	GlobalStats(ctx context.Context, accountID string) (domain.GlobalStats, error)
	AllOrders(ctx context.Context, opts domain.ListOpts) ([]domain.AccountOrder, error)
}

// AdminQuotes are the operator controls over the price store.
type AdminQuotes interface {
	OverridePrice(ctx context.Context, id string, price decimal.Decimal) (domain.Quote, error)
	AddListing(ctx context.Context, q domain.Quote) (domain.Quote, error)
}

// UserCounter counts registered identities.
type UserCounter interface {
	Count(ctx context.Context) int
}

// Archiver exports ledgers to object storage.
type Archiver interface {
	Archive(ctx context.Context) (domain.ArchiveResult, error)
	List(ctx context.Context, accountID string) ([]domain.BlobInfo, error)
}

// AdminHandler serves the operator console.
type AdminHandler struct {
	ledger   AdminLedger
	quotes   AdminQuotes
	users    UserCounter
	archiver Archiver
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. archiver and audit may be nil;
// their endpoints then answer 503.
func NewAdminHandler(ledger AdminLedger, quotes AdminQuotes, users UserCounter, archiver Archiver, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		quotes:   quotes,
		users:    users,
		archiver: archiver,
		audit:    audit,
		logger:   logger,
	}
}

// Stats returns aggregate volume, order count and liquidity across all
// accounts, or for one account with ?account=.
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var (
		stats domain.GlobalStats
		err   error
	)
	if account := r.URL.Query().Get("account"); account != "" {
		stats, err = h.ledger.GlobalStats(r.Context(), account)
	} else {
		stats, err = h.ledger.SystemStats(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "stats", err)
		return
	}
	stats.UserCount = h.users.Count(r.Context())
	writeJSON(w, http.StatusOK, stats)
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// OverridePrice sets a market's price by hand.
// PUT /api/admin/markets/{id}/price {"price":"65000"}
func (h *AdminHandler) OverridePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.quotes.OverridePrice(r.Context(), pathParam(r, "id"), req.Price)
	if err != nil {
		writeServiceError(w, r, h.logger, "override price", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// AddListing lists a new market.
// POST /api/admin/markets
func (h *AdminHandler) AddListing(w http.ResponseWriter, r *http.Request) {
	var q domain.Quote
	if !decodeJSON(w, r, &q) {
		return
	}
	listed, err := h.quotes.AddListing(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, h.logger, "add listing", err)
		return
	}
	writeJSON(w, http.StatusCreated, listed)
}

// Trades returns the system trade log across all accounts.
// GET /api/admin/trades?limit=50&offset=0
func (h *AdminHandler) Trades(w http.ResponseWriter, r *http.Request) {
	orders, err := h.ledger.AllOrders(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "trade log", err)
		return
	}
	if orders == nil {
		orders = []domain.AccountOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// Archive exports every ledger to object storage.
// POST /api/admin/archive
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}
	res, err := h.archiver.Archive(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "archive", err)
		return
	}
	h.logger.InfoContext(r.Context(), "ledgers archived",
		slog.Int("accounts", res.Accounts),
		slog.Int("orders", res.Orders),
	)
	writeJSON(w, http.StatusOK, res)
}

// Archives lists archived ledger files, optionally for one ?account=.
// GET /api/admin/archives
func (h *AdminHandler) Archives(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}
	infos, err := h.archiver.List(r.Context(), r.URL.Query().Get("account"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list archives", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

// Audit returns the audit log, newest first.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "audit log", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
