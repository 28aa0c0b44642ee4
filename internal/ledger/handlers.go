package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/papertrade/trade-engine/internal/model"
	"github.com/papertrade/trade-engine/internal/quote"
	"github.com/papertrade/trade-engine/internal/store"
)

// Error codes returned in the JSON error body. Each failure kind gets a
// distinct code so callers can decide to retry, adjust input, or give up.
const (
	codeInvalidInput        = "invalid_input"
	codeInsufficientFunds   = "insufficient_funds"
	codeInsufficientShares  = "insufficient_shares"
	codeConcurrentConflict  = "concurrent_update_conflict"
	codeRateLimited         = "rate_limited"
	codeQuoteUnavailable    = "quote_unavailable"
	codeUpstreamUnavailable = "upstream_unavailable"
	codeNotFound            = "not_found"
	codeInternal            = "internal_error"
)

// --- HTTP Handlers ---

// Status handles GET / — service liveness plus quota and cache counters.
func (s *Service) Status(w http.ResponseWriter, r *http.Request) {
	cacheStats, quotaStats := s.quotes.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "running",
		"service":        "trade-engine",
		"api_calls_used": quotaStats.Used,
		"api_limit":      quotaStats.Limit,
		"quota_resets":   quotaStats.ResetsAt,
		"cache":          cacheStats,
	})
}

// GetStock handles GET /api/stock/{symbol}.
func (s *Service) GetStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	q, err := s.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetStocks handles GET /api/stocks/{symbols} where symbols is a CSV list.
func (s *Service) GetStocks(w http.ResponseWriter, r *http.Request) {
	symbols := strings.Split(chi.URLParam(r, "symbols"), ",")

	quotes, err := s.quotes.GetQuotes(r.Context(), symbols)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

// GetHistorical handles GET /api/historical/{symbol} — the recent daily
// price series.
func (s *Service) GetHistorical(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	bars, err := s.quotes.GetHistory(r.Context(), symbol)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bars)
}

// ExecuteTrade handles POST /api/trade.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", codeInvalidInput, http.StatusBadRequest)
		return
	}

	result, err := s.SettleTrade(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// WalletTransaction handles POST /api/wallet/transaction — deposit or
// withdraw.
func (s *Service) WalletTransaction(w http.ResponseWriter, r *http.Request) {
	var req WalletOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", codeInvalidInput, http.StatusBadRequest)
		return
	}

	result, err := s.ApplyWalletOp(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetWallet handles GET /api/wallet/{accountID}.
func (s *Service) GetWallet(w http.ResponseWriter, r *http.Request) {
	summary, err := s.GetWalletSummary(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetPortfolioHandler handles GET /api/portfolio/{accountID}.
func (s *Service) GetPortfolioHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.GetPortfolio(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetTradeHistory handles GET /api/history/trades/{accountID}.
func (s *Service) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	trades, err := s.ListTrades(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// purgeRequest is the body of history DELETE requests.
type purgeRequest struct {
	IDs []string `json:"ids"`
}

// PurgeTradeHistory handles DELETE /api/history/trades/{accountID}.
func (s *Service) PurgeTradeHistory(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", codeInvalidInput, http.StatusBadRequest)
		return
	}

	if err := s.PurgeTrades(r.Context(), chi.URLParam(r, "accountID"), req.IDs); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

// GetWalletHistory handles GET /api/history/wallet/{accountID}.
func (s *Service) GetWalletHistory(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ListWalletTransactions(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if txs == nil {
		txs = []model.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// PurgeWalletHistory handles DELETE /api/history/wallet/{accountID}.
func (s *Service) PurgeWalletHistory(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", codeInvalidInput, http.StatusBadRequest)
		return
	}

	if err := s.PurgeWalletTransactions(r.Context(), chi.URLParam(r, "accountID"), req.IDs); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

// --- Error translation ---

// writeServiceError maps the error taxonomy onto HTTP statuses. Distinct
// status+code per kind: 4xx means fix the request, 429/5xx means retry
// later.
func (s *Service) writeServiceError(w http.ResponseWriter, err error) {
	var fundsErr *InsufficientFundsError
	var sharesErr *InsufficientSharesError

	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, err.Error(), codeInvalidInput, http.StatusBadRequest)
	case errors.As(err, &fundsErr):
		writeError(w, err.Error(), codeInsufficientFunds, http.StatusConflict)
	case errors.As(err, &sharesErr):
		writeError(w, err.Error(), codeInsufficientShares, http.StatusConflict)
	case errors.Is(err, ErrConcurrentUpdateConflict):
		writeError(w, err.Error(), codeConcurrentConflict, http.StatusServiceUnavailable)
	case errors.Is(err, quote.ErrRateLimited):
		writeError(w, err.Error(), codeRateLimited, http.StatusTooManyRequests)
	case errors.Is(err, quote.ErrQuoteUnavailable):
		writeError(w, err.Error(), codeQuoteUnavailable, http.StatusNotFound)
	case errors.Is(err, quote.ErrUpstreamUnavailable):
		writeError(w, err.Error(), codeUpstreamUnavailable, http.StatusBadGateway)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), codeNotFound, http.StatusNotFound)
	default:
		writeError(w, "internal error", codeInternal, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, code string, status int) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
