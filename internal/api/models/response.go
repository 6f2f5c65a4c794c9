package models

import (
	"time"

	"battle-arena/internal/analysis"
	"battle-arena/internal/battle"
	"battle-arena/internal/model"

	"github.com/shopspring/decimal"
)

// BattleListResponse lists every battle the server knows about
type BattleListResponse struct {
	Battles []battle.Info `json:"battles"`
	Count   int           `json:"count"`
}

// CreateBattleResponse is returned by POST /api/v1/battles
type CreateBattleResponse struct {
	Battle battle.Info `json:"battle"`
}

// LeaderboardResponse is the detailed standings of one battle
type LeaderboardResponse struct {
	BattleID    uint64                         `json:"battleId"`
	Phase       model.Phase                    `json:"phase"`
	TickCount   int                            `json:"tickCount"`
	Leaderboard []model.LeaderboardEntry       `json:"leaderboard"`
	Stats       map[string]analysis.TradeStats `json:"stats"`
}

// PricesResponse is the current market snapshot
type PricesResponse struct {
	Timestamp      time.Time                  `json:"timestamp"`
	Prices         map[string]decimal.Decimal `json:"prices"`
	VolatilityHint float64                    `json:"volatility"`
}

// HistoryResponse is a price series for one symbol
type HistoryResponse struct {
	Symbol string             `json:"symbol"`
	Days   int                `json:"days"`
	Points []model.PricePoint `json:"points"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StrategyInfo represents information about a strategy
type StrategyInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a strategy parameter
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "int", "string"
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
	Options     []string    `json:"options,omitempty"`
}

// FocusInfo lists the assets behind one asset focus
type FocusInfo struct {
	Name   string   `json:"name"`
	Assets []string `json:"assets"`
}
