package backtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"battle-arena/internal/battle"
	"battle-arena/internal/ledger"
	"battle-arena/internal/model"
	"battle-arena/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Entrant is one simulated participant.
type Entrant struct {
	ID     string               `yaml:"id"`
	Config model.StrategyConfig `yaml:"config"`
}

type Params struct {
	Entrants     []Entrant
	Duration     time.Duration
	TickInterval time.Duration
	// Seed fixes every random stream; zero uses the wall clock.
	Seed int64
	// WalkScale scales the per-round random walk applied on top of the price
	// source; zero replays the source unchanged.
	WalkScale float64
}

// Engine replays a whole battle on a simulated clock.
type Engine struct {
	Prices  battle.PriceFetcher
	Outcome battle.OutcomePolicy
	Logger  *zap.Logger
}

func New(prices battle.PriceFetcher, outcome battle.OutcomePolicy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Prices: prices, Outcome: outcome, Logger: logger}
}

// Run executes a battle from start to deadline against an in-memory ledger.
func (e *Engine) Run(ctx context.Context, p Params) (*Result, error) {
	if e.Prices == nil {
		return nil, fmt.Errorf("price source is nil")
	}
	if len(p.Entrants) < ledger.MinParticipants {
		return nil, fmt.Errorf("%w: have %d", battle.ErrNotEnoughParticipants, len(p.Entrants))
	}
	if p.Duration <= 0 {
		return nil, battle.ErrInvalidDuration
	}
	if p.TickInterval <= 0 {
		p.TickInterval = battle.DefaultTickInterval
	}
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	clock := &simClock{t: time.Now().UTC().Truncate(time.Second)}
	prices := e.Prices
	if p.WalkScale > 0 {
		prices = &randomWalk{base: e.Prices, rnd: rand.New(rand.NewSource(seed)), scale: p.WalkScale, now: clock.Now}
	}

	mem := ledger.NewMemory(nil, e.Logger)
	id, err := mem.CreateBattle(ctx)
	if err != nil {
		return nil, err
	}
	streams := 0
	o := battle.NewOrchestrator(id, battle.Options{
		TickInterval: p.TickInterval,
		Manual:       true,
		Now:          clock.Now,
		Factory: strategy.NewFactory(func(string) strategy.RandSource {
			streams++
			return rand.New(rand.NewSource(seed + int64(streams)))
		}),
		Prices:  prices,
		Ledger:  mem,
		Outcome: e.Outcome,
		Logger:  e.Logger,
	})

	for _, en := range p.Entrants {
		if err := mem.Join(ctx, id, en.ID, en.Config); err != nil {
			return nil, fmt.Errorf("entrant %s: %w", en.ID, err)
		}
		if err := o.Join(en.ID, en.Config); err != nil {
			return nil, fmt.Errorf("entrant %s: %w", en.ID, err)
		}
	}
	if err := mem.StartBattle(ctx, id); err != nil {
		return nil, err
	}
	if err := o.Start(ctx, p.Duration); err != nil {
		return nil, err
	}
	for o.Info().Phase != model.PhaseFinalized {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clock.advance(p.TickInterval)
		if err := o.Tick(ctx); err != nil {
			return nil, fmt.Errorf("round %d: %w", o.Info().TickCount+1, err)
		}
	}

	logs := o.Trades()
	res := &Result{
		Info:        o.Info(),
		Leaderboard: o.Leaderboard(),
		Stats:       StatsByParticipant(logs),
		Rows:        BuildRows(id, logs),
	}
	if out, ok := mem.Outcome(id); ok {
		res.Outcome = &out
	}
	return res, nil
}

type simClock struct {
	t time.Time
}

func (c *simClock) Now() time.Time          { return c.t }
func (c *simClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// randomWalk drifts every price by a normal step sized by the snapshot's
// volatility hint, starting from the first snapshot of the base source.
type randomWalk struct {
	base  battle.PriceFetcher
	rnd   *rand.Rand
	scale float64
	now   func() time.Time

	last *model.MarketSnapshot
}

func (w *randomWalk) Fetch(ctx context.Context) model.MarketSnapshot {
	if w.last == nil {
		snap := w.base.Fetch(ctx)
		snap.Timestamp = w.now()
		w.last = &snap
		return snap
	}
	next := model.MarketSnapshot{
		Timestamp:      w.now(),
		Prices:         make(map[string]decimal.Decimal, len(w.last.Prices)),
		VolatilityHint: w.last.VolatilityHint,
	}
	syms := make([]string, 0, len(w.last.Prices))
	for sym := range w.last.Prices {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		p := w.last.Prices[sym]
		step := 1 + w.rnd.NormFloat64()*w.scale*w.last.VolatilityHint
		if step < 0.5 {
			step = 0.5
		}
		next.Prices[sym] = p.Mul(decimal.NewFromFloat(step)).Round(12)
	}
	w.last = &next
	return next
}
