package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput is returned for non-positive shares or amounts, empty
	// symbols, or unknown sides/kinds. A caller bug; not retryable.
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrConcurrentUpdateConflict is returned when the bounded optimistic
	// retry loop exhausts its attempts. Transient; the whole settlement is
	// safe to re-submit.
	ErrConcurrentUpdateConflict = errors.New("ledger: concurrent update conflict")
)

// InsufficientFundsError rejects a buy or withdrawal that exceeds the wallet
// balance. Reports required vs available so the caller can adjust.
type InsufficientFundsError struct {
	RequiredCents  decimal.Decimal
	AvailableCents decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: needed %s cents, available %s cents",
		e.RequiredCents.String(), e.AvailableCents.String())
}

// InsufficientSharesError rejects a sell of more shares than the position
// holds (including selling a symbol with no position at all).
type InsufficientSharesError struct {
	Symbol          string
	RequestedShares decimal.Decimal
	HeldShares      decimal.Decimal
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares of %s: requested %s, held %s",
		e.Symbol, e.RequestedShares.String(), e.HeldShares.String())
}
