package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trade-engine/internal/model"
)

// Client fetches quotes from an FMP-style provider over HTTP:
//
//	GET {base}/quote/{SYM,SYM2}?apikey=K
//	GET {base}/historical-price-full/{SYM}?timeseries=30&apikey=K
//
// The provider reports prices in dollars; Client normalizes to cents.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient creates an upstream quote client. timeout bounds each request in
// addition to any caller-supplied context deadline.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type upstreamQuote struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	ChangesPercentage decimal.Decimal `json:"changesPercentage"`
}

type upstreamHistory struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date   string          `json:"date"`
		Close  decimal.Decimal `json:"close"`
		Volume int64           `json:"volume"`
	} `json:"historical"`
}

// FetchQuotes retrieves quotes for one or more symbols in a single provider
// call. Symbols absent from the provider response are simply missing from
// the result; an entirely empty response is ErrSymbolNotFound.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	u := fmt.Sprintf("%s/quote/%s?apikey=%s",
		c.baseURL, url.PathEscape(strings.Join(symbols, ",")), url.QueryEscape(c.apiKey))

	var payload []upstreamQuote
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, strings.Join(symbols, ","))
	}

	now := time.Now().UTC()
	quotes := make([]model.Quote, 0, len(payload))
	for _, q := range payload {
		quotes = append(quotes, model.Quote{
			Symbol:        strings.ToUpper(q.Symbol),
			Name:          q.Name,
			PriceCents:    q.Price.Shift(2),
			ChangePercent: q.ChangesPercentage,
			FetchedAt:     now,
		})
	}
	return quotes, nil
}

// FetchHistory retrieves the last days daily bars for a symbol.
func (c *Client) FetchHistory(ctx context.Context, symbol string, days int) ([]model.HistoricalBar, error) {
	u := fmt.Sprintf("%s/historical-price-full/%s?timeseries=%d&apikey=%s",
		c.baseURL, url.PathEscape(symbol), days, url.QueryEscape(c.apiKey))

	var payload upstreamHistory
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}
	if len(payload.Historical) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	bars := make([]model.HistoricalBar, 0, len(payload.Historical))
	for _, h := range payload.Historical {
		bars = append(bars, model.HistoricalBar{
			Date:       h.Date,
			PriceCents: h.Close.Shift(2),
			Volume:     h.Volume,
		})
	}
	return bars, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}
