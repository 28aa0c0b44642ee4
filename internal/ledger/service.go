// Package ledger owns wallet balances, positions, and trade history for all
// accounts. SettleTrade is the sole mutation entry point for trades: the
// wallet delta, the position change, and both history records commit as one
// atomic unit or not at all, even under concurrent requests for the same
// account.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trade-engine/internal/metrics"
	"github.com/papertrade/trade-engine/internal/model"
	"github.com/papertrade/trade-engine/internal/quote"
	"github.com/papertrade/trade-engine/internal/store"
	"github.com/papertrade/trade-engine/internal/valuation"
)

// defaultFundingCents is the starting balance granted when a wallet is
// created on first access: $10,000.
var defaultFundingCents = decimal.NewFromInt(1_000_000)

// maxCommitRetries bounds the optimistic read-compute-commit loop before a
// settlement surfaces ErrConcurrentUpdateConflict.
const maxCommitRetries = 3

// QuoteSource is what the ledger needs from the quote gateway.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) ([]model.Quote, error)
	GetHistory(ctx context.Context, symbol string) ([]model.HistoricalBar, error)
	Stats() (quote.CacheStats, quote.QuotaStats)
}

// Service is the ledger core. The price for a settlement is fetched before
// the commit window opens, so no lock is ever held across the network call.
type Service struct {
	store  store.Store
	quotes QuoteSource
	hub    *Hub // optional WebSocket hub for settlement events

	now func() time.Time
}

// NewService creates a ledger service. Pass nil for hub if event
// broadcasting is not needed.
func NewService(st store.Store, quotes QuoteSource, hub *Hub) *Service {
	return &Service{
		store:  st,
		quotes: quotes,
		hub:    hub,
		now:    time.Now,
	}
}

// SettleRequest is a buy or sell order for settlement at the current price.
type SettleRequest struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"` // "buy" or "sell"
	Shares    decimal.Decimal `json:"shares"`
}

// SettleResult reports the committed effects of a trade.
type SettleResult struct {
	TradeID         string          `json:"trade_id"`
	NewBalanceCents decimal.Decimal `json:"new_balance_cents"`
	PriceCents      decimal.Decimal `json:"price_cents"`
	RealizedPLCents decimal.Decimal `json:"realized_pl_cents"`
	Position        *model.Position `json:"position"` // nil when the sell closed it
}

// SettleTrade validates the request, fetches the settlement price, and
// commits wallet + position + trade record + wallet transaction atomically.
// On a version conflict it re-reads and recomputes, up to maxCommitRetries.
func (s *Service) SettleTrade(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	if err := validateSettle(req); err != nil {
		return nil, err
	}

	start := s.now()

	// Price first, commit second: the quote fetch is the slow, fallible part
	// and must never sit inside the commit window.
	q, err := s.quotes.GetQuote(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		result, err := s.trySettle(ctx, req, q)
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.SettlementConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.TradesSettled.WithLabelValues(req.Side).Inc()
		metrics.SettlementLatency.WithLabelValues(req.Side).Observe(s.now().Sub(start).Seconds())

		slog.Info("trade settled",
			"trade_id", result.TradeID,
			"account", req.AccountID,
			"symbol", q.Symbol,
			"side", req.Side,
			"shares", req.Shares.String(),
			"price_cents", q.PriceCents.String(),
			"new_balance_cents", result.NewBalanceCents.String(),
		)

		if s.hub != nil {
			s.hub.Broadcast(Event{
				Type:            EventTradeSettled,
				AccountID:       req.AccountID,
				Symbol:          q.Symbol,
				Side:            req.Side,
				Shares:          req.Shares.String(),
				PriceCents:      q.PriceCents.String(),
				NewBalanceCents: result.NewBalanceCents.String(),
				TradeID:         result.TradeID,
			})
		}
		return result, nil
	}

	return nil, ErrConcurrentUpdateConflict
}

// trySettle runs one read-compute-commit cycle at the given price.
func (s *Service) trySettle(ctx context.Context, req SettleRequest, q model.Quote) (*SettleResult, error) {
	wallet, err := s.ensureWallet(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	position, err := s.store.GetPosition(ctx, req.AccountID, q.Symbol)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	mut := &store.Mutation{}
	trade := &model.TradeRecord{
		ID:         uuid.New().String(),
		AccountID:  req.AccountID,
		Symbol:     q.Symbol,
		Side:       req.Side,
		Shares:     req.Shares,
		PriceCents: q.PriceCents,
		Timestamp:  now,
	}
	walletTx := &model.WalletTransaction{
		ID:        uuid.New().String(),
		AccountID: req.AccountID,
		Timestamp: now,
	}

	var realizedPL decimal.Decimal

	if req.Side == model.SideBuy {
		cost := req.Shares.Mul(q.PriceCents)
		if cost.GreaterThan(wallet.BalanceCents) {
			metrics.TradesRejected.WithLabelValues("insufficient_funds").Inc()
			return nil, &InsufficientFundsError{
				RequiredCents:  cost,
				AvailableCents: wallet.BalanceCents,
			}
		}

		wallet.BalanceCents = wallet.BalanceCents.Sub(cost)

		if position == nil {
			mut.Position = &model.Position{
				AccountID:    req.AccountID,
				Symbol:       q.Symbol,
				Shares:       req.Shares,
				AvgCostCents: q.PriceCents,
				LastUpdated:  now,
			}
		} else {
			// Volume-weighted average entry price; only buys move it.
			oldCost := position.Shares.Mul(position.AvgCostCents)
			newShares := position.Shares.Add(req.Shares)
			position.AvgCostCents = oldCost.Add(cost).Div(newShares)
			position.Shares = newShares
			position.LastUpdated = now
			mut.Position = position
		}

		walletTx.Kind = model.TxTradeDebit
		walletTx.AmountCents = cost
		walletTx.Description = fmt.Sprintf("buy %s %s @ %s", req.Shares, q.Symbol, q.PriceCents)
	} else {
		held := decimal.Zero
		if position != nil {
			held = position.Shares
		}
		if position == nil || held.LessThan(req.Shares) {
			metrics.TradesRejected.WithLabelValues("insufficient_shares").Inc()
			return nil, &InsufficientSharesError{
				Symbol:          q.Symbol,
				RequestedShares: req.Shares,
				HeldShares:      held,
			}
		}

		proceeds := req.Shares.Mul(q.PriceCents)
		realizedPL = q.PriceCents.Sub(position.AvgCostCents).Mul(req.Shares)

		wallet.BalanceCents = wallet.BalanceCents.Add(proceeds)
		wallet.RealizedPLCents = wallet.RealizedPLCents.Add(realizedPL)

		position.Shares = position.Shares.Sub(req.Shares)
		position.LastUpdated = now
		mut.Position = position
		// A position sold down to exactly zero is deleted, never kept at zero.
		mut.DeletePosition = position.Shares.IsZero()

		trade.AvgCostCents = position.AvgCostCents
		trade.RealizedPLCents = realizedPL

		walletTx.Kind = model.TxTradeCredit
		walletTx.AmountCents = proceeds
		walletTx.Description = fmt.Sprintf("sell %s %s @ %s", req.Shares, q.Symbol, q.PriceCents)
	}

	wallet.LastUpdated = now
	walletTx.ResultingBalanceCents = wallet.BalanceCents

	mut.Wallet = wallet
	mut.Trade = trade
	mut.WalletTx = walletTx

	if err := s.store.Apply(ctx, mut); err != nil {
		return nil, err
	}

	result := &SettleResult{
		TradeID:         trade.ID,
		NewBalanceCents: wallet.BalanceCents,
		PriceCents:      q.PriceCents,
		RealizedPLCents: realizedPL,
	}
	if mut.Position != nil && !mut.DeletePosition {
		committed := *mut.Position
		committed.Version++
		result.Position = &committed
	}
	return result, nil
}

// WalletOpRequest is a deposit or withdrawal.
type WalletOpRequest struct {
	AccountID   string          `json:"account_id"`
	Kind        string          `json:"kind"` // "deposit" or "withdraw"
	AmountCents decimal.Decimal `json:"amount_cents"`
}

// WalletOpResult reports a committed deposit or withdrawal.
type WalletOpResult struct {
	TransactionID   string          `json:"transaction_id"`
	NewBalanceCents decimal.Decimal `json:"new_balance_cents"`
}

// ApplyWalletOp deposits to or withdraws from a wallet with the same atomic
// commit discipline as settlement, touching only the wallet and its history.
func (s *Service) ApplyWalletOp(ctx context.Context, req WalletOpRequest) (*WalletOpResult, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if req.Kind != model.TxDeposit && req.Kind != model.TxWithdraw {
		return nil, fmt.Errorf("%w: kind must be %q or %q", ErrInvalidInput, model.TxDeposit, model.TxWithdraw)
	}
	if !req.AmountCents.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		wallet, err := s.ensureWallet(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}

		if req.Kind == model.TxDeposit {
			wallet.BalanceCents = wallet.BalanceCents.Add(req.AmountCents)
		} else {
			if req.AmountCents.GreaterThan(wallet.BalanceCents) {
				return nil, &InsufficientFundsError{
					RequiredCents:  req.AmountCents,
					AvailableCents: wallet.BalanceCents,
				}
			}
			wallet.BalanceCents = wallet.BalanceCents.Sub(req.AmountCents)
		}

		now := s.now().UTC()
		wallet.LastUpdated = now

		walletTx := &model.WalletTransaction{
			ID:                    uuid.New().String(),
			AccountID:             req.AccountID,
			Kind:                  req.Kind,
			AmountCents:           req.AmountCents,
			ResultingBalanceCents: wallet.BalanceCents,
			Timestamp:             now,
			Description:           fmt.Sprintf("%s from wallet", req.Kind),
		}

		err = s.store.Apply(ctx, &store.Mutation{Wallet: wallet, WalletTx: walletTx})
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.SettlementConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.Info("wallet transaction applied",
			"tx_id", walletTx.ID,
			"account", req.AccountID,
			"kind", req.Kind,
			"amount_cents", req.AmountCents.String(),
			"new_balance_cents", wallet.BalanceCents.String(),
		)

		if s.hub != nil {
			s.hub.Broadcast(Event{
				Type:            EventWalletUpdated,
				AccountID:       req.AccountID,
				Kind:            req.Kind,
				AmountCents:     req.AmountCents.String(),
				NewBalanceCents: wallet.BalanceCents.String(),
			})
		}
		return &WalletOpResult{TransactionID: walletTx.ID, NewBalanceCents: wallet.BalanceCents}, nil
	}

	return nil, ErrConcurrentUpdateConflict
}

// ensureWallet loads an account's wallet, creating it with default funding
// on first access. Creation races resolve through the version check: the
// loser just re-reads the winner's wallet.
func (s *Service) ensureWallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	for {
		wallet, err := s.store.GetWallet(ctx, accountID)
		if err == nil {
			return wallet, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		now := s.now().UTC()
		fresh := &model.Wallet{
			AccountID:       accountID,
			BalanceCents:    defaultFundingCents,
			Currency:        "USD",
			RealizedPLCents: decimal.Zero,
			LastUpdated:     now,
		}
		funding := &model.WalletTransaction{
			ID:                    uuid.New().String(),
			AccountID:             accountID,
			Kind:                  model.TxDeposit,
			AmountCents:           defaultFundingCents,
			ResultingBalanceCents: defaultFundingCents,
			Timestamp:             now,
			Description:           "initial funding",
		}

		err = s.store.Apply(ctx, &store.Mutation{Wallet: fresh, WalletTx: funding})
		if err == nil {
			slog.Info("wallet created", "account", accountID, "funding_cents", defaultFundingCents.String())
			fresh.Version = 1
			return fresh, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
		// Lost the creation race; loop re-reads the existing wallet.
	}
}

// WalletSummary is the wallet dashboard view: cash plus portfolio valuation.
type WalletSummary struct {
	AccountID         string          `json:"account_id"`
	BalanceCents      decimal.Decimal `json:"balance_cents"`
	Currency          string          `json:"currency"`
	RealizedPLCents   decimal.Decimal `json:"realized_pl_cents"`
	InvestedCents     decimal.Decimal `json:"invested_cents"`
	CurrentValueCents decimal.Decimal `json:"current_value_cents"`
	UnrealizedPLCents decimal.Decimal `json:"unrealized_pl_cents"`
	QuotesDegraded    bool            `json:"quotes_degraded,omitempty"`
}

// GetWalletSummary returns the wallet plus a valuation of all open
// positions. Quote failures degrade to zero prices rather than failing the
// whole view.
func (s *Service) GetWalletSummary(ctx context.Context, accountID string) (*WalletSummary, error) {
	wallet, err := s.ensureWallet(ctx, accountID)
	if err != nil {
		return nil, err
	}

	positions, err := s.store.ListPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	quotes, degraded := s.quotesFor(ctx, positions)
	summary := valuation.Valuate(positions, quotes)

	return &WalletSummary{
		AccountID:         accountID,
		BalanceCents:      wallet.BalanceCents,
		Currency:          wallet.Currency,
		RealizedPLCents:   wallet.RealizedPLCents,
		InvestedCents:     summary.TotalCostCents,
		CurrentValueCents: summary.TotalValueCents,
		UnrealizedPLCents: summary.TotalUnrealizedPLCents,
		QuotesDegraded:    degraded,
	}, nil
}

// GetPortfolio returns all open positions valued at current prices.
func (s *Service) GetPortfolio(ctx context.Context, accountID string) (*valuation.Summary, error) {
	positions, err := s.store.ListPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	quotes, _ := s.quotesFor(ctx, positions)
	summary := valuation.Valuate(positions, quotes)
	return &summary, nil
}

// quotesFor fetches quotes for the positions' symbols, best effort. On
// gateway failure the valuation proceeds with missing quotes (price zero)
// and the view is flagged degraded.
func (s *Service) quotesFor(ctx context.Context, positions []model.Position) (map[string]model.Quote, bool) {
	if len(positions) == 0 {
		return nil, false
	}

	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}

	quotes, err := s.quotes.GetQuotes(ctx, symbols)
	if err != nil {
		slog.Warn("portfolio valuation degraded, quotes unavailable", "err", err)
		return nil, true
	}

	bySymbol := make(map[string]model.Quote, len(quotes))
	for _, q := range quotes {
		bySymbol[q.Symbol] = q
	}
	return bySymbol, false
}

// ListTrades returns the account's trade history, newest first.
func (s *Service) ListTrades(ctx context.Context, accountID string) ([]model.TradeRecord, error) {
	return s.store.ListTrades(ctx, accountID)
}

// ListWalletTransactions returns the account's wallet history, newest first.
func (s *Service) ListWalletTransactions(ctx context.Context, accountID string) ([]model.WalletTransaction, error) {
	return s.store.ListWalletTransactions(ctx, accountID)
}

// PurgeTrades deletes the given trade records. User-initiated history
// cleanup; runs outside the settlement path and never touches balances.
func (s *Service) PurgeTrades(ctx context.Context, accountID string, ids []string) error {
	if accountID == "" || len(ids) == 0 {
		return fmt.Errorf("%w: account id and at least one record id required", ErrInvalidInput)
	}
	return s.store.DeleteTrades(ctx, accountID, ids)
}

// PurgeWalletTransactions deletes the given wallet history records.
func (s *Service) PurgeWalletTransactions(ctx context.Context, accountID string, ids []string) error {
	if accountID == "" || len(ids) == 0 {
		return fmt.Errorf("%w: account id and at least one record id required", ErrInvalidInput)
	}
	return s.store.DeleteWalletTransactions(ctx, accountID, ids)
}

func validateSettle(req SettleRequest) error {
	if req.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return fmt.Errorf("%w: side must be %q or %q", ErrInvalidInput, model.SideBuy, model.SideSell)
	}
	if !req.Shares.IsPositive() {
		return fmt.Errorf("%w: shares must be positive", ErrInvalidInput)
	}
	return nil
}
