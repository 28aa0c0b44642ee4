package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papertrade/trade-engine/internal/metrics"
	"github.com/papertrade/trade-engine/internal/model"
)

// Fetcher is the upstream provider interface the gateway depends on.
// Implemented by Client; swapped for a fake in tests.
type Fetcher interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]model.Quote, error)
	FetchHistory(ctx context.Context, symbol string, days int) ([]model.HistoricalBar, error)
}

// Gateway is the single entry point for prices: cache first, then the quota
// guard, then the upstream fetch. Upstream failures are never retried here —
// a retry burns quota; the caller decides.
type Gateway struct {
	cache       Cache
	quota       *QuotaGuard
	upstream    Fetcher
	historyDays int
}

// NewGateway creates a quote gateway. historyDays bounds the historical
// series requested upstream (the provider returns daily bars).
func NewGateway(cache Cache, quota *QuotaGuard, upstream Fetcher, historyDays int) *Gateway {
	return &Gateway{
		cache:       cache,
		quota:       quota,
		upstream:    upstream,
		historyDays: historyDays,
	}
}

// GetQuote returns the current quote for one symbol, served from cache when
// fresh.
func (g *Gateway) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if q, ok := g.cache.GetQuote(symbol); ok {
		metrics.QuoteCacheHits.Inc()
		return q, nil
	}
	metrics.QuoteCacheMisses.Inc()

	quotes, err := g.fetch(ctx, []string{symbol})
	if err != nil {
		return model.Quote{}, err
	}
	return quotes[0], nil
}

// GetQuotes returns quotes for several symbols. Cache misses are fetched in
// one upstream call (charged as one against the quota); a batch failure
// fails the whole batch — there is no partial-success contract, mirroring
// upstream batch semantics.
func (g *Gateway) GetQuotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	result := make([]model.Quote, 0, len(symbols))
	var missing []string

	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true

		if q, ok := g.cache.GetQuote(sym); ok {
			metrics.QuoteCacheHits.Inc()
			result = append(result, q)
			continue
		}
		metrics.QuoteCacheMisses.Inc()
		missing = append(missing, sym)
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := g.fetch(ctx, missing)
	if err != nil {
		return nil, err
	}
	return append(result, fetched...), nil
}

// GetHistory returns the recent daily price series for a symbol, cached
// under its own TTL.
func (g *Gateway) GetHistory(ctx context.Context, symbol string) ([]model.HistoricalBar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if bars, ok := g.cache.GetHistory(symbol); ok {
		metrics.QuoteCacheHits.Inc()
		return bars, nil
	}
	metrics.QuoteCacheMisses.Inc()

	if err := g.quota.Reserve(); err != nil {
		metrics.QuotaRejections.Inc()
		return nil, fmt.Errorf("%w: history %s", ErrRateLimited, symbol)
	}

	metrics.UpstreamCalls.Inc()
	bars, err := g.upstream.FetchHistory(ctx, symbol, g.historyDays)
	if err != nil {
		return nil, g.classify(err, symbol)
	}

	g.cache.PutHistory(symbol, bars)
	return bars, nil
}

// Stats reports cache and quota consumption for the status endpoint.
func (g *Gateway) Stats() (CacheStats, QuotaStats) {
	return g.cache.Stats(), g.quota.Stats()
}

func (g *Gateway) fetch(ctx context.Context, symbols []string) ([]model.Quote, error) {
	if err := g.quota.Reserve(); err != nil {
		metrics.QuotaRejections.Inc()
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, strings.Join(symbols, ","))
	}

	metrics.UpstreamCalls.Inc()
	quotes, err := g.upstream.FetchQuotes(ctx, symbols)
	if err != nil {
		return nil, g.classify(err, strings.Join(symbols, ","))
	}

	for _, q := range quotes {
		g.cache.PutQuote(q)
	}

	slog.Debug("quotes fetched", "symbols", symbols, "count", len(quotes))
	return quotes, nil
}

// classify maps upstream failures onto the gateway error taxonomy.
func (g *Gateway) classify(err error, symbols string) error {
	if errors.Is(err, ErrSymbolNotFound) {
		return fmt.Errorf("%w: %s", ErrQuoteUnavailable, symbols)
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, symbols, err)
}
