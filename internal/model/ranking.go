package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RankEntry is one line of a ranking snapshot.
type RankEntry struct {
	ParticipantID string          `json:"participantId"`
	PnL           decimal.Decimal `json:"pnl"`
}

// RankingSnapshot is pushed to observers after every tick and on finalize.
type RankingSnapshot struct {
	BattleID  uint64      `json:"battleId"`
	Tick      int         `json:"tick"`
	Final     bool        `json:"final"`
	Ranking   []RankEntry `json:"ranking"`
	Timestamp time.Time   `json:"timestamp"`
}

// JoinNotice announces a roster addition.
type JoinNotice struct {
	BattleID      uint64         `json:"battleId"`
	ParticipantID string         `json:"participantId"`
	Config        StrategyConfig `json:"config"`
}

// LeaderboardEntry is the detailed per-participant read model.
type LeaderboardEntry struct {
	Rank          int             `json:"rank"`
	ParticipantID string          `json:"participantId"`
	Config        StrategyConfig  `json:"config"`
	PnL           decimal.Decimal `json:"pnl"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	TradeCount    int             `json:"tradeCount"`
	Position      *Position       `json:"position,omitempty"`
}
