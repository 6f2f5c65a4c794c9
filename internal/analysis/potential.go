package analysis

import (
	"math"
	"sort"

	"battle-arena/internal/model"
)

// TradeStats summarises a participant's closed trades.
// Profit figures are the unweighted price move of each SELL, in percent.
type TradeStats struct {
	Buys   int `json:"buys"`
	Sells  int `json:"sells"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	WinRate float64 `json:"winRate"`

	BestProfit  float64 `json:"bestProfit"`
	WorstProfit float64 `json:"worstProfit"`
	MeanProfit  float64 `json:"meanProfit"`
	P05Profit   float64 `json:"p05Profit"`
	P95Profit   float64 `json:"p95Profit"`
}

func ComputeTradeStats(trades []model.TradeEvent) TradeStats {
	s := TradeStats{}
	vals := make([]float64, 0, len(trades))
	sum := 0.0
	best := math.Inf(-1)
	worst := math.Inf(1)
	for _, tr := range trades {
		switch tr.Action {
		case model.DecisionBuy:
			s.Buys++
			continue
		case model.DecisionSell:
			s.Sells++
		default:
			continue
		}
		v := tr.ProfitPercent.InexactFloat64()
		vals = append(vals, v)
		sum += v
		if v > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		if v > best {
			best = v
		}
		if v < worst {
			worst = v
		}
	}
	if len(vals) == 0 {
		return s
	}
	sort.Float64s(vals)
	s.WinRate = float64(s.Wins) / float64(len(vals))
	s.BestProfit = best
	s.WorstProfit = worst
	s.MeanProfit = sum / float64(len(vals))
	s.P05Profit = percentileSorted(vals, 0.05)
	s.P95Profit = percentileSorted(vals, 0.95)
	return s
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
