package ledger_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/papertrade/trade-engine/internal/model"
	"github.com/papertrade/trade-engine/internal/quote"
)

func newTestRouter(t *testing.T) (*chi.Mux, *fakeQuotes) {
	t.Helper()
	svc, _, quotes := newTestService(t)

	r := chi.NewRouter()
	r.Get("/", svc.Status)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stock/{symbol}", svc.GetStock)
		r.Get("/stocks/{symbols}", svc.GetStocks)
		r.Get("/historical/{symbol}", svc.GetHistorical)
		r.Post("/trade", svc.ExecuteTrade)
		r.Post("/wallet/transaction", svc.WalletTransaction)
		r.Get("/wallet/{accountID}", svc.GetWallet)
		r.Get("/portfolio/{accountID}", svc.GetPortfolioHandler)
		r.Get("/history/trades/{accountID}", svc.GetTradeHistory)
		r.Delete("/history/trades/{accountID}", svc.PurgeTradeHistory)
		r.Get("/history/wallet/{accountID}", svc.GetWalletHistory)
		r.Delete("/history/wallet/{accountID}", svc.PurgeWalletHistory)
	})
	return r, quotes
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Body.String(), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not a JSON object: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestHandler_ExecuteTrade(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/api/trade",
		`{"account_id":"u1","symbol":"AAPL","side":"buy","shares":"10"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	// 10 shares at $150 leaves $8,500.
	if body["new_balance_cents"] != "850000" {
		t.Errorf("unexpected balance in response: %v", body["new_balance_cents"])
	}
	if body["trade_id"] == "" {
		t.Error("response should carry the trade id")
	}
}

func TestHandler_ExecuteTrade_BadBody(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/api/trade", `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["code"] != "invalid_input" {
		t.Errorf("expected code invalid_input, got %v", body["code"])
	}
}

func TestHandler_ExecuteTrade_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid side",
			body:       `{"account_id":"u1","symbol":"AAPL","side":"hold","shares":"1"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
		},
		{
			name:       "insufficient funds",
			body:       `{"account_id":"u1","symbol":"AAPL","side":"buy","shares":"100"}`,
			wantStatus: http.StatusConflict,
			wantCode:   "insufficient_funds",
		},
		{
			name:       "insufficient shares",
			body:       `{"account_id":"u1","symbol":"AAPL","side":"sell","shares":"1"}`,
			wantStatus: http.StatusConflict,
			wantCode:   "insufficient_shares",
		},
		{
			name:       "unknown symbol",
			body:       `{"account_id":"u1","symbol":"NOPE","side":"buy","shares":"1"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "quote_unavailable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRouter(t)

			rec, body := doJSON(t, r, http.MethodPost, "/api/trade", tc.body)
			if rec.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if body["code"] != tc.wantCode {
				t.Errorf("expected code %q, got %v", tc.wantCode, body["code"])
			}
		})
	}
}

func TestHandler_ExecuteTrade_RateLimited(t *testing.T) {
	r, quotes := newTestRouter(t)
	quotes.err = fmt.Errorf("%w: daily budget spent", quote.ErrRateLimited)

	rec, body := doJSON(t, r, http.MethodPost, "/api/trade",
		`{"account_id":"u1","symbol":"AAPL","side":"buy","shares":"1"}`)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["code"] != "rate_limited" {
		t.Errorf("expected code rate_limited, got %v", body["code"])
	}
}

func TestHandler_GetStock(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/api/stock/AAPL", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["symbol"] != "AAPL" {
		t.Errorf("unexpected quote: %v", body)
	}
}

func TestHandler_GetWallet_CreatesOnFirstAccess(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/api/wallet/newuser", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["balance_cents"] != "1000000" {
		t.Errorf("fresh wallet should hold the default funding, got %v", body["balance_cents"])
	}
	if body["currency"] != "USD" {
		t.Errorf("expected USD, got %v", body["currency"])
	}
}

func TestHandler_WalletTransaction(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/api/wallet/transaction",
		`{"account_id":"u1","kind":"deposit","amount_cents":"25000"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["new_balance_cents"] != "1025000" {
		t.Errorf("expected 1025000 after deposit, got %v", body["new_balance_cents"])
	}
}

func TestHandler_TradeHistoryRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/api/trade",
		`{"account_id":"u1","symbol":"AAPL","side":"buy","shares":"1"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/history/trades/u1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var trades []model.TradeRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &trades); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(trades) != 1 || trades[0].Symbol != "AAPL" {
		t.Errorf("unexpected history: %+v", trades)
	}

	// Purge it and confirm the list comes back empty, not null.
	rec, body := doJSON(t, r, http.MethodDelete, "/api/history/trades/u1",
		fmt.Sprintf(`{"ids":[%q]}`, trades[0].ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("purge expected 200, got %d", rec.Code)
	}
	if body["deleted"] != float64(1) {
		t.Errorf("expected deleted=1, got %v", body["deleted"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/history/trades/u1", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)
	if strings.TrimSpace(rec2.Body.String()) != "[]" {
		t.Errorf("empty history should encode as [], got %s", rec2.Body.String())
	}
}

func TestHandler_Status(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "running" {
		t.Errorf("unexpected status body: %v", body)
	}
	if body["api_limit"] != float64(250) {
		t.Errorf("expected api_limit 250, got %v", body["api_limit"])
	}
}
