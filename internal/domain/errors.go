package domain

import "errors"

// User-recoverable trading and session errors. Handlers surface these as
// inline messages; none of them is fatal to the process.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrServiceUnavailable  = errors.New("external service unavailable")
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidTrade  = errors.New("invalid trade parameters")
	ErrInvalidPrice  = errors.New("price must be positive")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
)
