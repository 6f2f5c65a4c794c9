package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is one capture of the asset universe.
// Produced only by the price source and never mutated after it is returned.
type MarketSnapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Prices    map[string]decimal.Decimal `json:"prices"`
	// VolatilityHint is advisory flavor in [0,1]; it is not derived from price history.
	VolatilityHint float64 `json:"volatility"`
}

// Price returns the quote for symbol when it is present and positive.
func (m MarketSnapshot) Price(symbol string) (decimal.Decimal, bool) {
	p, ok := m.Prices[symbol]
	if !ok || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

// Complete reports whether every universe symbol has a positive price.
func (m MarketSnapshot) Complete() bool {
	for _, s := range Universe {
		if _, ok := m.Price(s); !ok {
			return false
		}
	}
	return true
}

// PricePoint is one historical observation.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}
