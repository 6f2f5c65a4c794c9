package battle

import (
	"fmt"
	"strings"

	"battle-arena/internal/analysis"
	"battle-arena/internal/model"

	"github.com/shopspring/decimal"
)

const (
	PolicyTop    = "top"
	PolicyMargin = "margin"
)

// Outcome is the verdict drawn from a final ranking.
type Outcome struct {
	Winner string
	PnL    decimal.Decimal
	// Draw is advisory; the top-ranked participant is still reported as winner.
	Draw bool
}

type OutcomePolicy interface {
	Name() string
	Decide(ranking []model.RankEntry) Outcome
}

// TopPolicy declares the first-ranked participant the winner.
type TopPolicy struct{}

func (TopPolicy) Name() string { return PolicyTop }

func (TopPolicy) Decide(ranking []model.RankEntry) Outcome {
	if len(ranking) == 0 {
		return Outcome{}
	}
	return Outcome{Winner: ranking[0].ParticipantID, PnL: ranking[0].PnL}
}

// MarginPolicy flags a draw when first and second place are within Margin PnL points.
type MarginPolicy struct {
	Margin decimal.Decimal
}

func (MarginPolicy) Name() string { return PolicyMargin }

func (p MarginPolicy) Decide(ranking []model.RankEntry) Outcome {
	out := TopPolicy{}.Decide(ranking)
	if len(ranking) >= 2 && analysis.TopMargin(ranking).LessThanOrEqual(p.Margin) {
		out.Draw = true
	}
	return out
}

func ParseOutcomePolicy(name string, margin float64) (OutcomePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyTop:
		return TopPolicy{}, nil
	case PolicyMargin:
		if margin < 0 {
			return nil, fmt.Errorf("draw margin must not be negative, got %v", margin)
		}
		return MarginPolicy{Margin: decimal.NewFromFloat(margin)}, nil
	default:
		return nil, fmt.Errorf("unknown outcome policy %q", name)
	}
}

// BasisPoints converts a PnL percentage to rounded basis points.
func BasisPoints(pnl decimal.Decimal) int64 {
	return pnl.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
