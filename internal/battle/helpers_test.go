package battle

import (
	"context"
	"errors"
	"sync"
	"time"

	"battle-arena/internal/model"
	"battle-arena/internal/strategy"

	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// seq replays draws, then answers 0.99 (which fails any frequency gate below 99).
type seq struct {
	mu    sync.Mutex
	draws []float64
}

func (s *seq) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draws) == 0 {
		return 0.99
	}
	v := s.draws[0]
	s.draws = s.draws[1:]
	return v
}

func scriptedFactory(scripts map[string][]float64) strategy.Factory {
	return strategy.NewFactory(func(id string) strategy.RandSource {
		return &seq{draws: scripts[id]}
	})
}

// prices serves queued snapshots; the last one repeats.
type prices struct {
	mu    sync.Mutex
	queue []model.MarketSnapshot
	calls int
}

func newPrices(btcDogeSteps ...[2]string) *prices {
	p := &prices{}
	for i, s := range btcDogeSteps {
		p.queue = append(p.queue, model.MarketSnapshot{
			Timestamp: time.Unix(1740819600+int64(i)*30, 0).UTC(),
			Prices: map[string]decimal.Decimal{
				model.SymbolBTC:  decimal.RequireFromString(s[0]),
				model.SymbolETH:  decimal.NewFromInt(3000),
				model.SymbolDOGE: decimal.RequireFromString(s[1]),
				model.SymbolPEPE: decimal.RequireFromString("0.00001"),
			},
			VolatilityHint: 0.5,
		})
	}
	return p
}

func (p *prices) Fetch(ctx context.Context) model.MarketSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	s := p.queue[0]
	if len(p.queue) > 1 {
		p.queue = p.queue[1:]
	}
	return s
}

func (p *prices) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type report struct {
	BattleID uint64
	Winner   string
	Bps      int64
}

type fakeReporter struct {
	mu      sync.Mutex
	fail    bool
	reports []report
	calls   int
}

func (f *fakeReporter) ReportOutcome(ctx context.Context, battleID uint64, winner string, pnlBps int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("ledger unreachable")
	}
	f.reports = append(f.reports, report{battleID, winner, pnlBps})
	return nil
}

func (f *fakeReporter) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *fakeReporter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu       sync.Mutex
	rankings []model.RankingSnapshot
	joins    []model.JoinNotice
}

func (r *recorder) PublishRanking(s model.RankingSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rankings = append(r.rankings, s)
}

func (r *recorder) PublishJoin(n model.JoinNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, n)
}

func (r *recorder) Rankings() []model.RankingSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RankingSnapshot(nil), r.rankings...)
}

var (
	aggressive = model.StrategyConfig{RiskLevel: 100, TradeFrequency: 100, AssetFocus: model.FocusLowVol}
	memecoin   = model.StrategyConfig{RiskLevel: 50, TradeFrequency: 50, AssetFocus: model.FocusHighVol}
)
