package strategy

import (
	"testing"
	"time"

	"battle-arena/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	draws []float64
	i     int
}

func (s *scripted) Float64() float64 {
	if s.i >= len(s.draws) {
		return 0.99
	}
	v := s.draws[s.i]
	s.i++
	return v
}

func market(prices map[string]string) model.MarketSnapshot {
	out := make(map[string]decimal.Decimal, len(prices))
	for k, v := range prices {
		out[k] = decimal.RequireFromString(v)
	}
	return model.MarketSnapshot{Timestamp: time.Unix(1700000000, 0), Prices: out, VolatilityHint: 0.5}
}

func basePrices() map[string]string {
	return map[string]string{"BTC": "100", "ETH": "50", "DOGE": "0.2", "PEPE": "0.00001"}
}

func TestDecideHoldWhenFrequencyGateFails(t *testing.T) {
	rnd := &scripted{draws: []float64{0.5}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 50, TradeFrequency: 40, AssetFocus: model.FocusLowVol}, rnd)

	d, err := a.Decide(market(basePrices()))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionHold, d)
	assert.Equal(t, 1, rnd.i, "only the gate draw is consumed")
}

func TestDecideBuyOnPositiveMomentum(t *testing.T) {
	rnd := &scripted{draws: []float64{0.1, 0.9}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 50, TradeFrequency: 40, AssetFocus: model.FocusLowVol}, rnd)

	d, err := a.Decide(market(basePrices()))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionBuy, d)
}

func TestDecideHoldOnNonPositiveMomentum(t *testing.T) {
	rnd := &scripted{draws: []float64{0.1, 0.5}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 50, TradeFrequency: 40, AssetFocus: model.FocusLowVol}, rnd)

	d, err := a.Decide(market(basePrices()))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionHold, d)
}

func TestBuySizeAndAssetSelection(t *testing.T) {
	// gate, momentum, asset pick (0.7 -> second LowVol candidate)
	rnd := &scripted{draws: []float64{0.0, 0.9, 0.7}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 80, TradeFrequency: 100, AssetFocus: model.FocusLowVol}, rnd)
	m := market(basePrices())

	d, err := a.Decide(m)
	require.NoError(t, err)
	ev, err := a.Apply(d, m)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, model.DecisionBuy, ev.Action)
	assert.Equal(t, "ETH", ev.Asset)
	assert.True(t, ev.Size.Equal(decimal.RequireFromString("0.4")), "size=%s", ev.Size)
	v := a.View()
	require.NotNil(t, v.Position)
	assert.True(t, v.Position.EntryPrice.Equal(decimal.NewFromInt(50)))
	assert.True(t, v.RealizedPnL.IsZero(), "BUY never changes realized PnL")
}

func TestMidVolUsesSingleAssetWithoutDraw(t *testing.T) {
	rnd := &scripted{draws: []float64{0.0, 0.9}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 10, TradeFrequency: 100, AssetFocus: model.FocusMidVol}, rnd)
	m := market(basePrices())

	d, _ := a.Decide(m)
	ev, err := a.Apply(d, m)
	require.NoError(t, err)
	assert.Equal(t, "ETH", ev.Asset)
	assert.Equal(t, 2, rnd.i)
}

func TestTakeProfitAndStopLoss(t *testing.T) {
	cases := []struct {
		name  string
		price string
		want  model.Decision
	}{
		{"take profit", "105.01", model.DecisionSell},
		{"exactly five percent holds", "105", model.DecisionHold},
		{"inside band", "99", model.DecisionHold},
		{"stop loss", "96.99", model.DecisionSell},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rnd := &scripted{draws: []float64{0.0, 0.9, 0.1, 0.0}}
			a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 100, TradeFrequency: 100, AssetFocus: model.FocusLowVol}, rnd)
			m := market(basePrices())
			_, err := a.Apply(model.DecisionBuy, m)
			require.NoError(t, err)
			rnd.i = 3

			p := basePrices()
			p["BTC"] = tc.price
			d, err := a.Decide(market(p))
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
		})
	}
}

func TestSellRealizesWeightedProfit(t *testing.T) {
	rnd := &scripted{draws: []float64{0.1}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 60, TradeFrequency: 100, AssetFocus: model.FocusLowVol}, rnd)
	_, err := a.Apply(model.DecisionBuy, market(basePrices()))
	require.NoError(t, err)

	p := basePrices()
	p["BTC"] = "110"
	ev, err := a.Apply(model.DecisionSell, market(p))
	require.NoError(t, err)

	// 10% move * size 0.3 = 3 points
	assert.True(t, ev.ProfitPercent.Equal(decimal.NewFromInt(10)), "profit=%s", ev.ProfitPercent)
	assert.True(t, ev.RealizedPnL.Equal(decimal.NewFromInt(3)), "realized=%s", ev.RealizedPnL)
	v := a.View()
	assert.Nil(t, v.Position)
	assert.True(t, v.RealizedPnL.Equal(decimal.NewFromInt(3)))
	assert.Len(t, v.Trades, 2)
}

func TestSinglePositionInvariant(t *testing.T) {
	rnd := &scripted{draws: []float64{0.1, 0.1}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 60, TradeFrequency: 100, AssetFocus: model.FocusLowVol}, rnd)
	m := market(basePrices())
	_, err := a.Apply(model.DecisionBuy, m)
	require.NoError(t, err)

	_, err = a.Apply(model.DecisionBuy, m)
	require.ErrorIs(t, err, ErrPositionOpen)
	assert.Len(t, a.View().Trades, 1)

	_, err = NewMomentumAgent("b", model.StrategyConfig{AssetFocus: model.FocusLowVol}, rnd).Apply(model.DecisionSell, m)
	require.ErrorIs(t, err, ErrNoPosition)
}

func TestPnLIsPureRead(t *testing.T) {
	rnd := &scripted{draws: []float64{0.1}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 100, TradeFrequency: 100, AssetFocus: model.FocusLowVol}, rnd)
	_, err := a.Apply(model.DecisionBuy, market(basePrices()))
	require.NoError(t, err)

	p := basePrices()
	p["BTC"] = "102"
	m := market(p)
	before := a.View()
	first := a.PnL(m)
	second := a.PnL(m)

	assert.True(t, first.Equal(decimal.NewFromInt(1)), "pnl=%s", first)
	assert.True(t, first.Equal(second))
	assert.Equal(t, before, a.View())
}

func TestMissingPriceIsAnError(t *testing.T) {
	rnd := &scripted{draws: []float64{0.1, 0.0}}
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 100, TradeFrequency: 100, AssetFocus: model.FocusLowVol}, rnd)
	_, err := a.Apply(model.DecisionBuy, market(basePrices()))
	require.NoError(t, err)

	p := basePrices()
	delete(p, "BTC")
	_, err = a.Decide(market(p))
	require.ErrorIs(t, err, ErrMissingPrice)
	assert.True(t, a.PnL(market(p)).IsZero())
}

func TestConfigIsClamped(t *testing.T) {
	a := NewMomentumAgent("a", model.StrategyConfig{RiskLevel: 250, TradeFrequency: -3, AssetFocus: model.FocusHighVol}, &scripted{})
	assert.Equal(t, 100, a.Config().RiskLevel)
	assert.Equal(t, 1, a.Config().TradeFrequency)
}
