package backtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"battle-arena/internal/battle"
	"battle-arena/internal/data"
	"battle-arena/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPrices struct{}

func (fixedPrices) Fetch(ctx context.Context) model.MarketSnapshot {
	return data.Fallback(time.Unix(1740819600, 0))
}

func entrants() []Entrant {
	return []Entrant{
		{ID: "alice", Config: model.StrategyConfig{RiskLevel: 80, TradeFrequency: 90, AssetFocus: model.FocusLowVol}},
		{ID: "bob", Config: model.StrategyConfig{RiskLevel: 40, TradeFrequency: 60, AssetFocus: model.FocusHighVol}},
		{ID: "carol", Config: model.StrategyConfig{RiskLevel: 60, TradeFrequency: 70, AssetFocus: model.FocusMidVol}},
	}
}

func TestRunCompletesBattle(t *testing.T) {
	e := New(fixedPrices{}, battle.TopPolicy{}, nil)
	res, err := e.Run(context.Background(), Params{
		Entrants:     entrants(),
		Duration:     10 * time.Minute,
		TickInterval: 30 * time.Second,
		Seed:         42,
		WalkScale:    0.05,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PhaseFinalized, res.Info.Phase)
	assert.Equal(t, 20, res.Info.TickCount)
	require.NotNil(t, res.Info.Result)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, res.Info.Result.Winner, res.Outcome.Winner)
	assert.Equal(t, res.Info.Result.PnLBps, res.Outcome.PnLBps)
	require.Len(t, res.Leaderboard, 3)
	assert.Equal(t, res.Leaderboard[0].ParticipantID, res.Outcome.Winner)
	assert.Len(t, res.Stats, 3)

	for i, r := range res.Rows {
		assert.Equal(t, i, r.Index)
		if i > 0 {
			assert.False(t, r.Time.Before(res.Rows[i-1].Time))
		}
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	run := func() *Result {
		res, err := New(fixedPrices{}, nil, nil).Run(context.Background(), Params{
			Entrants:  entrants(),
			Duration:  5 * time.Minute,
			Seed:      7,
			WalkScale: 0.1,
		})
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	require.Len(t, b.Leaderboard, len(a.Leaderboard))
	for i := range a.Leaderboard {
		assert.Equal(t, a.Leaderboard[i].ParticipantID, b.Leaderboard[i].ParticipantID)
		assert.True(t, a.Leaderboard[i].PnL.Equal(b.Leaderboard[i].PnL))
	}
	assert.Equal(t, len(a.Rows), len(b.Rows))
}

func TestRunValidatesParams(t *testing.T) {
	e := New(fixedPrices{}, nil, nil)
	_, err := e.Run(context.Background(), Params{Entrants: entrants()[:1], Duration: time.Minute})
	assert.ErrorIs(t, err, battle.ErrNotEnoughParticipants)
	_, err = e.Run(context.Background(), Params{Entrants: entrants()})
	assert.ErrorIs(t, err, battle.ErrInvalidDuration)
	_, err = e.Run(context.Background(), Params{Entrants: []Entrant{entrants()[0], entrants()[0]}, Duration: time.Minute})
	assert.Error(t, err)
}

func TestBuildRowsAndCSV(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	logs := []battle.ParticipantTrades{
		{ParticipantID: "alice", Trades: []model.TradeEvent{
			{ID: "a1", Action: model.DecisionBuy, Asset: "BTC", Price: decimal.NewFromInt(100), Size: decimal.RequireFromString("0.5"), Time: t0},
			{ID: "a2", Action: model.DecisionSell, Asset: "BTC", Price: decimal.NewFromInt(110), ProfitPercent: decimal.NewFromInt(10), RealizedPnL: decimal.NewFromInt(5), Time: t0.Add(time.Minute)},
		}},
		{ParticipantID: "bob", Trades: []model.TradeEvent{
			{ID: "b1", Action: model.DecisionBuy, Asset: "DOGE", Price: decimal.RequireFromString("0.2"), Size: decimal.RequireFromString("0.25"), Time: t0},
		}},
	}
	rows := BuildRows(4, logs)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a1", "b1", "a2"}, []string{rows[0].TradeID, rows[1].TradeID, rows[2].TradeID})
	assert.Equal(t, "5", rows[2].CumPnL.String())

	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, rows))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "participant_id", records[0][2])
	assert.Equal(t, []string{"2", "4", "alice", "a2", "2025-03-01T09:01:00Z", "SELL", "BTC", "110", "0.000000", "10.000000", "5.000000", "5.000000"}, records[3])
}
