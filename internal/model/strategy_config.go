package model

import "fmt"

const (
	minLevel = 1
	maxLevel = 100
)

// StrategyConfig is supplied at registration and never changes afterwards.
type StrategyConfig struct {
	RiskLevel      int        `json:"riskLevel" yaml:"risk_level"`
	TradeFrequency int        `json:"tradeFrequency" yaml:"trade_frequency"`
	AssetFocus     AssetFocus `json:"assetFocus" yaml:"asset_focus"`
}

// Clamped returns a copy with both levels forced into [1,100].
func (c StrategyConfig) Clamped() StrategyConfig {
	c.RiskLevel = clampLevel(c.RiskLevel)
	c.TradeFrequency = clampLevel(c.TradeFrequency)
	return c
}

func (c StrategyConfig) Validate() error {
	if !c.AssetFocus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFocus, c.AssetFocus)
	}
	return nil
}

func clampLevel(v int) int {
	if v < minLevel {
		return minLevel
	}
	if v > maxLevel {
		return maxLevel
	}
	return v
}
