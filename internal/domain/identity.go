package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Identity is a registered user. Email is unique across all identities.
// PasswordHash is persisted but never leaves the process.
type Identity struct {
	ID                  string          `json:"id"`
	Email               string          `json:"email"`
	Name                string          `json:"name"`
	StartingCashBalance decimal.Decimal `json:"startingCashBalance"`
	PasswordHash        string          `json:"passwordHash,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// Public returns a copy of i safe to hand to clients.
func (i Identity) Public() Identity {
	i.PasswordHash = ""
	return i
}

// StrategyStep is one step of an AI-suggested trading plan.
type StrategyStep struct {
	Step      string `json:"step"`
	Reasoning string `json:"reasoning"`
}
