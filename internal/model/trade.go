package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the single open exposure of a participant.
type Position struct {
	Asset        string          `json:"asset"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	SizeFraction decimal.Decimal `json:"sizeFraction"`
	OpenedAt     time.Time       `json:"openedAt"`
}

// TradeEvent is an append-only audit record.
// BUY events carry Size; SELL events carry ProfitPercent (unweighted price move in percent)
// and RealizedPnL (the size-weighted contribution added to the participant's PnL).
type TradeEvent struct {
	ID            string          `json:"id"`
	Action        Decision        `json:"action"`
	Asset         string          `json:"asset"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size,omitempty"`
	ProfitPercent decimal.Decimal `json:"profitPercent,omitempty"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl,omitempty"`
	Time          time.Time       `json:"time"`
}
