package quote

import (
	"sync"
	"time"
)

// QuotaGuard tracks calls made to the upstream provider against a rolling
// daily budget. The window is measured from the last reset, not from a
// wall-clock boundary, and resets lazily on the next Reserve after it
// elapses. Single-process, best-effort: the provider enforces its own hard
// quota; this guard only keeps us from hammering it and surfaces a friendly
// error early.
type QuotaGuard struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	used      int
	lastReset time.Time

	now func() time.Time
}

// QuotaStats reports budget consumption for the status endpoint.
type QuotaStats struct {
	Used     int       `json:"api_calls_used"`
	Limit    int       `json:"api_limit"`
	ResetsAt time.Time `json:"resets_at"`
}

// NewQuotaGuard creates a guard allowing limit calls per window.
func NewQuotaGuard(limit int, window time.Duration) *QuotaGuard {
	g := &QuotaGuard{limit: limit, window: window, now: time.Now}
	g.lastReset = g.now()
	return g
}

// Reserve charges one upstream call against the budget, or returns
// ErrQuotaExceeded if the budget is spent. A reserved call stays charged
// even if the fetch then fails.
func (g *QuotaGuard) Reserve() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastReset) > g.window {
		g.used = 0
		g.lastReset = now
	}

	if g.used >= g.limit {
		return ErrQuotaExceeded
	}
	g.used++
	return nil
}

// Stats returns current budget consumption.
func (g *QuotaGuard) Stats() QuotaStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return QuotaStats{
		Used:     g.used,
		Limit:    g.limit,
		ResetsAt: g.lastReset.Add(g.window),
	}
}
