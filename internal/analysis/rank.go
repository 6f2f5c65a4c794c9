package analysis

import (
	"sort"

	"battle-arena/internal/model"

	"github.com/shopspring/decimal"
)

// Standing is a participant's score going into a ranking.
type Standing struct {
	ParticipantID string
	JoinIndex     int
	PnL           decimal.Decimal
}

// RankByPnL sorts descending by PnL; equal PnL keeps join order.
// The input slice is not modified.
func RankByPnL(standings []Standing) []model.RankEntry {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].PnL.Cmp(sorted[j].PnL); c != 0 {
			return c > 0
		}
		return sorted[i].JoinIndex < sorted[j].JoinIndex
	})
	out := make([]model.RankEntry, 0, len(sorted))
	for _, s := range sorted {
		out = append(out, model.RankEntry{ParticipantID: s.ParticipantID, PnL: s.PnL})
	}
	return out
}

// TopMargin is the PnL gap between first and second place, in PnL points.
// It is zero when fewer than two entries are ranked.
func TopMargin(ranking []model.RankEntry) decimal.Decimal {
	if len(ranking) < 2 {
		return decimal.Zero
	}
	return ranking[0].PnL.Sub(ranking[1].PnL).Abs()
}
