package quote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClient_FetchQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/quote/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Errorf("missing api key, got query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"symbol":"AAPL","name":"Apple Inc.","price":150.25,"changesPercentage":1.5}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", 5*time.Second)

	quotes, err := c.FetchQuotes(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}

	q := quotes[0]
	if q.Symbol != "AAPL" || q.Name != "Apple Inc." {
		t.Errorf("unexpected quote identity: %+v", q)
	}
	// 150.25 dollars → 15025 cents, exactly.
	if !q.PriceCents.Equal(decimal.NewFromInt(15025)) {
		t.Errorf("expected 15025 cents, got %s", q.PriceCents)
	}
}

func TestClient_FetchQuotes_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 5*time.Second)

	_, err := c.FetchQuotes(context.Background(), []string{"NOPE"})
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("expected ErrSymbolNotFound, got %v", err)
	}
}

func TestClient_FetchQuotes_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 5*time.Second)

	if _, err := c.FetchQuotes(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatal("expected error on upstream 500")
	}
}

func TestClient_FetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/historical-price-full/AAPL") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("timeseries") != "30" {
			t.Errorf("expected timeseries=30, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"symbol":"AAPL","historical":[
			{"date":"2025-08-26","close":150.00,"volume":12345},
			{"date":"2025-08-25","close":148.50,"volume":54321}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 5*time.Second)

	bars, err := c.FetchHistory(context.Background(), "AAPL", 30)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Date != "2025-08-26" || !bars[0].PriceCents.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("unexpected bar: %+v", bars[0])
	}
	if bars[1].Volume != 54321 {
		t.Errorf("unexpected volume: %d", bars[1].Volume)
	}
}
