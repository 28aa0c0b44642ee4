// Package valuation computes market value, cost basis, and unrealized P/L
// for open positions. Pure functions, no I/O: read paths call it with
// whatever quotes they managed to fetch.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/papertrade/trade-engine/internal/model"
)

// PositionValue is one position priced against a current quote.
type PositionValue struct {
	Symbol              string          `json:"symbol"`
	Shares              decimal.Decimal `json:"shares"`
	AvgCostCents        decimal.Decimal `json:"avg_cost_cents"`
	PriceCents          decimal.Decimal `json:"price_cents"`
	MarketValueCents    decimal.Decimal `json:"market_value_cents"`
	CostBasisCents      decimal.Decimal `json:"cost_basis_cents"`
	UnrealizedPLCents   decimal.Decimal `json:"unrealized_pl_cents"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealized_pl_percent"`

	// QuoteMissing marks a position priced at zero because no quote was
	// available. Degraded display, not a failure.
	QuoteMissing bool `json:"quote_missing,omitempty"`
}

// Summary aggregates a whole portfolio.
type Summary struct {
	Positions              []PositionValue `json:"positions"`
	TotalValueCents        decimal.Decimal `json:"total_value_cents"`
	TotalCostCents         decimal.Decimal `json:"total_cost_cents"`
	TotalUnrealizedPLCents decimal.Decimal `json:"total_unrealized_pl_cents"`
}

var hundred = decimal.NewFromInt(100)

// Valuate prices positions against quotes. A position with no quote
// contributes at price zero; percent is zero when the cost basis is zero.
func Valuate(positions []model.Position, quotes map[string]model.Quote) Summary {
	out := Summary{Positions: make([]PositionValue, 0, len(positions))}

	for _, p := range positions {
		q, ok := quotes[p.Symbol]
		price := decimal.Zero
		if ok {
			price = q.PriceCents
		}

		marketValue := p.Shares.Mul(price)
		costBasis := p.Shares.Mul(p.AvgCostCents)
		unrealized := marketValue.Sub(costBasis)

		percent := decimal.Zero
		if !costBasis.IsZero() {
			percent = unrealized.Div(costBasis).Mul(hundred)
		}

		out.Positions = append(out.Positions, PositionValue{
			Symbol:              p.Symbol,
			Shares:              p.Shares,
			AvgCostCents:        p.AvgCostCents,
			PriceCents:          price,
			MarketValueCents:    marketValue,
			CostBasisCents:      costBasis,
			UnrealizedPLCents:   unrealized,
			UnrealizedPLPercent: percent,
			QuoteMissing:        !ok,
		})

		out.TotalValueCents = out.TotalValueCents.Add(marketValue)
		out.TotalCostCents = out.TotalCostCents.Add(costBasis)
		out.TotalUnrealizedPLCents = out.TotalUnrealizedPLCents.Add(unrealized)
	}

	return out
}
