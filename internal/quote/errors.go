package quote

import "errors"

var (
	// ErrQuotaExceeded is returned by the QuotaGuard once the rolling daily
	// call budget is exhausted. Internal; the gateway translates it.
	ErrQuotaExceeded = errors.New("quote: daily API limit reached")

	// ErrSymbolNotFound is returned by the upstream client when the provider
	// returns no data for a symbol. Internal; the gateway translates it.
	ErrSymbolNotFound = errors.New("quote: symbol not found upstream")

	// ErrRateLimited is returned when a fetch was rejected because the daily
	// upstream quota is exhausted. Retry after the window resets.
	ErrRateLimited = errors.New("quote: rate limited, upstream quota exhausted")

	// ErrUpstreamUnavailable is returned on transport or decode failures
	// talking to the provider. Transient; the caller may retry with backoff.
	// Not retried here — a retry burns quota.
	ErrUpstreamUnavailable = errors.New("quote: upstream provider unavailable")

	// ErrQuoteUnavailable is returned when the provider has no quote for the
	// requested symbol. Not retryable without a different symbol.
	ErrQuoteUnavailable = errors.New("quote: quote unavailable for symbol")
)
