package backtest

import (
	"sort"
	"time"

	"battle-arena/internal/analysis"
	"battle-arena/internal/battle"
	"battle-arena/internal/ledger"
	"battle-arena/internal/model"

	"github.com/shopspring/decimal"
)

// TradeRow is one row of the trade log.
// This is the primary artifact for "what happened" in a battle.
type TradeRow struct {
	Index int

	BattleID      uint64
	ParticipantID string
	TradeID       string
	Time          time.Time

	Action model.Decision
	Asset  string
	Price  decimal.Decimal

	Size          decimal.Decimal
	ProfitPercent decimal.Decimal
	RealizedPnL   decimal.Decimal

	// CumPnL is the participant's realized PnL after this trade.
	CumPnL decimal.Decimal
}

type Result struct {
	Info        battle.Info
	Leaderboard []model.LeaderboardEntry
	Stats       map[string]analysis.TradeStats
	Outcome     *ledger.Outcome
	Rows        []TradeRow
}

// BuildRows flattens per-participant logs into one chronological table.
// Trades at the same instant keep join order.
func BuildRows(battleID uint64, logs []battle.ParticipantTrades) []TradeRow {
	rows := make([]TradeRow, 0)
	for _, l := range logs {
		cum := decimal.Zero
		for _, tr := range l.Trades {
			cum = cum.Add(tr.RealizedPnL)
			rows = append(rows, TradeRow{
				BattleID:      battleID,
				ParticipantID: l.ParticipantID,
				TradeID:       tr.ID,
				Time:          tr.Time,
				Action:        tr.Action,
				Asset:         tr.Asset,
				Price:         tr.Price,
				Size:          tr.Size,
				ProfitPercent: tr.ProfitPercent,
				RealizedPnL:   tr.RealizedPnL,
				CumPnL:        cum,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	for i := range rows {
		rows[i].Index = i
	}
	return rows
}

// StatsByParticipant summarises each participant's log.
func StatsByParticipant(logs []battle.ParticipantTrades) map[string]analysis.TradeStats {
	out := make(map[string]analysis.TradeStats, len(logs))
	for _, l := range logs {
		out[l.ParticipantID] = analysis.ComputeTradeStats(l.Trades)
	}
	return out
}
