// Package model defines the core domain types shared across the trade engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Money fields are denominated in cents.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Wallet transaction kinds.
const (
	TxDeposit     = "deposit"
	TxWithdraw    = "withdraw"
	TxTradeCredit = "trade-credit"
	TxTradeDebit  = "trade-debit"
)

// Wallet holds an account's cash balance. One per account, created on first
// access with default funding; mutated only through the ledger.
type Wallet struct {
	AccountID       string          `json:"account_id" db:"account_id"`
	BalanceCents    decimal.Decimal `json:"balance_cents" db:"balance_cents"`
	Currency        string          `json:"currency" db:"currency"`
	RealizedPLCents decimal.Decimal `json:"realized_pl_cents" db:"realized_pl_cents"`
	Version         int64           `json:"version" db:"version"`
	LastUpdated     time.Time       `json:"last_updated" db:"last_updated"`
}

// Position is an account's holding in one symbol. Exists only while
// shares > 0; a position sold down to zero is deleted, not retained.
type Position struct {
	AccountID    string          `json:"account_id" db:"account_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Shares       decimal.Decimal `json:"shares" db:"shares"`
	AvgCostCents decimal.Decimal `json:"avg_cost_cents" db:"avg_cost_cents"`
	Version      int64           `json:"version" db:"version"`
	LastUpdated  time.Time       `json:"last_updated" db:"last_updated"`
}

// TradeRecord is an immutable record of a settled trade.
// Once created, these are never modified; deletion happens only through an
// explicit user-initiated history purge, never by the settlement path.
type TradeRecord struct {
	ID         string          `json:"id" db:"id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       string          `json:"side" db:"side"` // "buy" or "sell"
	Shares     decimal.Decimal `json:"shares" db:"shares"`
	PriceCents decimal.Decimal `json:"price_cents" db:"price_cents"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`

	// Sell-only fields: cost basis at sale time and the P/L it locked in.
	AvgCostCents    decimal.Decimal `json:"avg_cost_cents,omitempty" db:"avg_cost_cents"`
	RealizedPLCents decimal.Decimal `json:"realized_pl_cents,omitempty" db:"realized_pl_cents"`
}

// WalletTransaction is an immutable record of a wallet balance change.
type WalletTransaction struct {
	ID                    string          `json:"id" db:"id"`
	AccountID             string          `json:"account_id" db:"account_id"`
	Kind                  string          `json:"kind" db:"kind"`
	AmountCents           decimal.Decimal `json:"amount_cents" db:"amount_cents"`
	ResultingBalanceCents decimal.Decimal `json:"resulting_balance_cents" db:"resulting_balance_cents"`
	Timestamp             time.Time       `json:"timestamp" db:"timestamp"`
	Description           string          `json:"description" db:"description"`
}

// Quote is an ephemeral market quote. Never persisted beyond the cache TTL;
// authoritative only at the instant a trade settles (the ledger snapshots the
// price into the TradeRecord).
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	PriceCents    decimal.Decimal `json:"price_cents"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

// HistoricalBar is one day of a symbol's price history.
type HistoricalBar struct {
	Date       string          `json:"date"`
	PriceCents decimal.Decimal `json:"price_cents"`
	Volume     int64           `json:"volume"`
}
