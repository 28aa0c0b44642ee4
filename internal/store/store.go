// Package store defines the persistence interface for the trade engine.
// Implementations include PostgreSQL (source of truth) and in-memory (for
// testing and development).
package store

import (
	"context"
	"errors"

	"github.com/papertrade/trade-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned by Apply when a record changed since the
	// version the mutation was computed against. The caller re-reads and
	// recomputes.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Mutation is one atomic multi-record commit: the wallet state it writes,
// an optional position upsert or delete, and optional history appends.
// Either every record in the mutation becomes visible or none do.
//
// Wallet.Version and Position.Version carry the version the record was read
// at; version 0 means "create, must not exist". The store bumps versions on
// write and rejects the whole mutation with ErrVersionConflict when any
// version check fails.
type Mutation struct {
	// Wallet is the new wallet state. Required.
	Wallet *model.Wallet

	// Position is the new position state, or the record to delete when
	// DeletePosition is set. Nil when the mutation does not touch a position.
	Position       *model.Position
	DeletePosition bool

	// Trade is appended to the trade history if non-nil.
	Trade *model.TradeRecord

	// WalletTx is appended to the wallet history if non-nil.
	WalletTx *model.WalletTransaction
}

// Store is the persistence interface. Apply is the only mutation entry point
// for settlement-path records; history purges are separate, user-initiated
// operations that never run inside a settlement.
type Store interface {
	// GetWallet retrieves an account's wallet. ErrNotFound if absent.
	GetWallet(ctx context.Context, accountID string) (*model.Wallet, error)

	// GetPosition retrieves the account's position for one symbol.
	// ErrNotFound if absent.
	GetPosition(ctx context.Context, accountID, symbol string) (*model.Position, error)

	// ListPositions returns all open positions for an account.
	ListPositions(ctx context.Context, accountID string) ([]model.Position, error)

	// ListTrades returns an account's trade history, newest first.
	ListTrades(ctx context.Context, accountID string) ([]model.TradeRecord, error)

	// ListWalletTransactions returns an account's wallet history, newest first.
	ListWalletTransactions(ctx context.Context, accountID string) ([]model.WalletTransaction, error)

	// Apply commits a mutation atomically with version checks.
	Apply(ctx context.Context, m *Mutation) error

	// DeleteTrades removes the given trade records for an account.
	DeleteTrades(ctx context.Context, accountID string, ids []string) error

	// DeleteWalletTransactions removes the given wallet history records.
	DeleteWalletTransactions(ctx context.Context, accountID string, ids []string) error
}
