package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexusx/nexus/internal/crypto"
	"github.com/nexusx/nexus/internal/domain"
)

// AccountOpener creates the ledger of a new identity.
type AccountOpener interface {
	OpenAccount(ctx context.Context, accountID string, cash decimal.Decimal) error
}

// SessionService keeps the registered identities and the single active
// session, persisted under users_db and active_session.
type SessionService struct {
	mu     sync.Mutex
	users  []domain.Identity
	active *domain.Identity

	store        domain.SnapshotStore
	accounts     AccountOpener
	demoMode     bool
	startingCash decimal.Decimal
	logger       *slog.Logger

	newID func() string
	now   func() time.Time
}

// NewSessionService loads persisted identities and the active session. In
// demo mode any password is accepted at login.
func NewSessionService(
	ctx context.Context,
	store domain.SnapshotStore,
	accounts AccountOpener,
	demoMode bool,
	logger *slog.Logger,
) (*SessionService, error) {
	s := &SessionService{
		store:        store,
		accounts:     accounts,
		demoMode:     demoMode,
		startingCash: domain.DefaultStartingCash,
		logger:       logger.With(slog.String("component", "session_service")),
		newID:        uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
	}

	if err := s.loadJSON(ctx, domain.KeyUsers, &s.users); err != nil {
		return nil, err
	}
	var active domain.Identity
	if err := s.loadJSON(ctx, domain.KeyActiveSession, &active); err != nil {
		return nil, err
	}
	if active.ID != "" {
		s.active = &active
	}
	return s, nil
}

// Register creates an identity with the default starting cash, opens its
// ledger and makes it the active session.
func (s *SessionService) Register(ctx context.Context, email, name, password string) (domain.Identity, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return domain.Identity{}, fmt.Errorf("session_service: register: email required: %w", domain.ErrInvalidInput)
	}
	if password == "" && !s.demoMode {
		return domain.Identity{}, fmt.Errorf("session_service: register: password required: %w", domain.ErrInvalidInput)
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return domain.Identity{}, fmt.Errorf("session_service: register %s: %w", email, domain.ErrEmailTaken)
		}
	}

	ident := domain.Identity{
		ID:                  s.newID(),
		Email:               email,
		Name:                name,
		StartingCashBalance: s.startingCash,
		CreatedAt:           s.now(),
	}
	if password != "" {
		hash, err := crypto.HashPassword(password)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("session_service: register: %w", err)
		}
		ident.PasswordHash = hash
	}

	// users_db first: a ledger must never exist without its identity.
	users := append(append([]domain.Identity(nil), s.users...), ident)
	if err := s.saveJSON(ctx, domain.KeyUsers, users); err != nil {
		return domain.Identity{}, err
	}
	if err := s.accounts.OpenAccount(ctx, ident.ID, ident.StartingCashBalance); err != nil {
		if rbErr := s.saveJSON(ctx, domain.KeyUsers, s.users); rbErr != nil {
			s.logger.ErrorContext(ctx, "roll back users_db failed",
				slog.String("identity", ident.ID),
				slog.String("error", rbErr.Error()),
			)
		}
		return domain.Identity{}, fmt.Errorf("session_service: open account: %w", err)
	}
	s.users = users

	if err := s.setActive(ctx, &ident); err != nil {
		return domain.Identity{}, err
	}
	s.logger.InfoContext(ctx, "identity registered", slog.String("identity", ident.ID))
	return ident.Public(), nil
}

// Login makes the identity registered under email the active session.
func (s *SessionService) Login(ctx context.Context, email, password string) (domain.Identity, error) {
	email = strings.TrimSpace(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	var found *domain.Identity
	for i := range s.users {
		if s.users[i].Email == email {
			found = &s.users[i]
			break
		}
	}
	if found == nil {
		return domain.Identity{}, fmt.Errorf("session_service: login %s: %w", email, domain.ErrInvalidCredentials)
	}
	if !s.demoMode && !crypto.CheckPassword(found.PasswordHash, password) {
		return domain.Identity{}, fmt.Errorf("session_service: login %s: %w", email, domain.ErrInvalidCredentials)
	}

	ident := *found
	if err := s.setActive(ctx, &ident); err != nil {
		return domain.Identity{}, err
	}
	s.logger.InfoContext(ctx, "identity logged in", slog.String("identity", ident.ID))
	return ident.Public(), nil
}

// Logout clears the active session.
func (s *SessionService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setActive(ctx, nil)
}

// Active returns the active identity or domain.ErrNotFound.
func (s *SessionService) Active(_ context.Context) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return domain.Identity{}, fmt.Errorf("session_service: no active session: %w", domain.ErrNotFound)
	}
	return s.active.Public(), nil
}

// Get returns the identity with the given id.
func (s *SessionService) Get(_ context.Context, id string) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u.Public(), nil
		}
	}
	return domain.Identity{}, fmt.Errorf("session_service: identity %q: %w", id, domain.ErrNotFound)
}

// Count returns the number of registered identities.
func (s *SessionService) Count(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// setActive persists and adopts ident as the active session; nil clears
// it. Callers hold s.mu.
func (s *SessionService) setActive(ctx context.Context, ident *domain.Identity) error {
	if ident == nil {
		if err := s.store.Delete(ctx, domain.KeyActiveSession); err != nil {
			return fmt.Errorf("session_service: clear active session: %w", err)
		}
		s.active = nil
		return nil
	}
	if err := s.saveJSON(ctx, domain.KeyActiveSession, ident); err != nil {
		return err
	}
	cp := *ident
	s.active = &cp
	return nil
}

func (s *SessionService) loadJSON(ctx context.Context, key string, v any) error {
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session_service: load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("session_service: decode %s: %w", key, err)
	}
	return nil
}

func (s *SessionService) saveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session_service: encode %s: %w", key, err)
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("session_service: save %s: %w", key, err)
	}
	return nil
}
