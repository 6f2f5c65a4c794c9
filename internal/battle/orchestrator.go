package battle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"battle-arena/internal/analysis"
	"battle-arena/internal/broadcast"
	"battle-arena/internal/data"
	"battle-arena/internal/ledger"
	"battle-arena/internal/metrics"
	"battle-arena/internal/model"
	"battle-arena/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultTickInterval = 30 * time.Second

const (
	TriggerDeadline = "deadline"
	TriggerAbort    = "abort"
)

// PriceFetcher supplies the shared market snapshot for a round.
type PriceFetcher interface {
	Fetch(ctx context.Context) model.MarketSnapshot
}

// Reporter receives the final outcome.
type Reporter interface {
	ReportOutcome(ctx context.Context, battleID uint64, winner string, pnlBps int64) error
}

type Options struct {
	TickInterval time.Duration
	// Manual disables the internal schedule; the caller drives Tick.
	Manual      bool
	Now         func() time.Time
	Factory     strategy.Factory
	Prices      PriceFetcher
	Ledger      Reporter
	Broadcaster broadcast.Broadcaster
	Outcome     OutcomePolicy
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Factory == nil {
		o.Factory = strategy.NewFactory(strategy.SeededRand)
	}
	if o.Prices == nil {
		o.Prices = data.NewPriceSource(nil, data.Options{Now: o.Now})
	}
	if o.Broadcaster == nil {
		o.Broadcaster = broadcast.Discard{}
	}
	if o.Outcome == nil {
		o.Outcome = TopPolicy{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Info is the battle summary as of the last completed operation.
type Info struct {
	ID           uint64      `json:"id"`
	Phase        model.Phase `json:"phase"`
	Participants int         `json:"participants"`
	TickCount    int         `json:"tickCount"`
	CreatedAt    time.Time   `json:"createdAt"`
	StartedAt    time.Time   `json:"startedAt"`
	Deadline     time.Time   `json:"deadline"`
	LastTickAt   time.Time   `json:"lastTickAt"`
	Result       *Result     `json:"result,omitempty"`
	ReportError  string      `json:"reportError,omitempty"`
}

// Result is the finalized verdict.
type Result struct {
	Winner      string            `json:"winner"`
	PnL         decimal.Decimal   `json:"pnl"`
	PnLBps      int64             `json:"pnlBps"`
	Draw        bool              `json:"draw"`
	Policy      string            `json:"policy"`
	Trigger     string            `json:"trigger"`
	Ranking     []model.RankEntry `json:"ranking"`
	FinalizedAt time.Time         `json:"finalizedAt"`
	Reported    bool              `json:"reported"`
}

// ParticipantTrades is one participant's trade log.
type ParticipantTrades struct {
	ParticipantID string
	Trades        []model.TradeEvent
}

type participant struct {
	id        string
	cfg       model.StrategyConfig
	joinIndex int
	joinedAt  time.Time
	agent     strategy.Strategy
	faults    int
}

type readModel struct {
	info        Info
	leaderboard []model.LeaderboardEntry
	trades      []ParticipantTrades
}

// Orchestrator runs one battle. Every mutation holds opMu, so a tick never
// overlaps another tick, a join or a finalize. Readers only touch the read
// model, which is republished at the end of each mutation.
type Orchestrator struct {
	id   uint64
	opts Options
	log  *zap.Logger

	opMu         sync.Mutex
	phase        model.Phase
	participants []*participant
	byID         map[string]*participant
	createdAt    time.Time
	startedAt    time.Time
	deadline     time.Time
	lastTickAt   time.Time
	tickCount    int
	lastMarket   *model.MarketSnapshot
	result       *Result
	reportErr    error
	cancel       context.CancelFunc
	done         chan struct{}

	viewMu sync.RWMutex
	view   readModel
}

func NewOrchestrator(id uint64, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		id:        id,
		opts:      opts,
		log:       opts.Logger.Named("battle").With(zap.Uint64("battle_id", id)),
		phase:     model.PhasePending,
		byID:      make(map[string]*participant),
		createdAt: opts.Now(),
	}
	o.publishView(nil)
	return o
}

func (o *Orchestrator) ID() uint64 { return o.id }

// Join adds a participant. Only valid while Pending.
func (o *Orchestrator) Join(participantID string, cfg model.StrategyConfig) error {
	if participantID == "" {
		return ErrInvalidParticipant
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.phase != model.PhasePending {
		return phaseError("join", o.phase)
	}
	if _, ok := o.byID[participantID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateParticipant, participantID)
	}

	cfg = cfg.Clamped()
	p := &participant{
		id:        participantID,
		cfg:       cfg,
		joinIndex: len(o.participants),
		joinedAt:  o.opts.Now(),
		agent:     o.opts.Factory(participantID, cfg),
	}
	o.participants = append(o.participants, p)
	o.byID[participantID] = p
	o.publishView(nil)

	o.log.Info("participant joined",
		zap.String("participant", participantID),
		zap.Int("risk", cfg.RiskLevel), zap.Int("frequency", cfg.TradeFrequency),
		zap.String("focus", string(cfg.AssetFocus)))
	o.opts.Broadcaster.PublishJoin(model.JoinNotice{BattleID: o.id, ParticipantID: participantID, Config: cfg})
	return nil
}

// Start moves the battle to Running, runs the first round before returning
// and schedules the rest every TickInterval until the deadline.
func (o *Orchestrator) Start(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ErrInvalidDuration
	}

	o.opMu.Lock()
	if o.phase == model.PhasePending && len(o.participants) < ledger.MinParticipants {
		o.opMu.Unlock()
		return fmt.Errorf("%w: have %d", ErrNotEnoughParticipants, len(o.participants))
	}
	if err := o.advance("start", model.PhaseRunning); err != nil {
		o.opMu.Unlock()
		return err
	}

	now := o.opts.Now()
	o.startedAt = now
	o.deadline = now.Add(duration)
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	metrics.BattlesActive.Inc()
	o.log.Info("battle started",
		zap.Int("participants", len(o.participants)),
		zap.Time("deadline", o.deadline),
		zap.Duration("tick_interval", o.opts.TickInterval))

	err := o.tickLocked(ctx)
	done := o.done
	o.opMu.Unlock()

	if o.opts.Manual {
		close(done)
	} else {
		go o.schedule(runCtx, done)
	}
	return err
}

// Tick runs one round, or finalizes once the deadline has passed.
// It is a no-op outside Running.
func (o *Orchestrator) Tick(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if o.phase != model.PhaseRunning {
		return nil
	}
	return o.tickLocked(ctx)
}

// Abort ends a running battle early using the latest market snapshot.
func (o *Orchestrator) Abort(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if o.phase != model.PhaseRunning {
		return phaseError("abort", o.phase)
	}
	o.log.Info("battle aborted", zap.Int("ticks", o.tickCount))
	return o.finalizeLocked(ctx, TriggerAbort)
}

// RetryReport re-sends an outcome the ledger did not accept.
func (o *Orchestrator) RetryReport(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if o.phase != model.PhaseFinalized {
		return phaseError("report", o.phase)
	}
	if o.result.Reported {
		return nil
	}
	err := o.reportLocked(ctx)
	o.publishView(o.lastMarket)
	return err
}

// Close stops the schedule without finalizing.
func (o *Orchestrator) Close() {
	o.opMu.Lock()
	cancel, done := o.cancel, o.done
	o.opMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the schedule goroutine exits; nil before Start.
func (o *Orchestrator) Done() <-chan struct{} {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.done
}

func (o *Orchestrator) Info() Info {
	o.viewMu.RLock()
	defer o.viewMu.RUnlock()
	return o.view.info
}

func (o *Orchestrator) Leaderboard() []model.LeaderboardEntry {
	o.viewMu.RLock()
	defer o.viewMu.RUnlock()
	return append([]model.LeaderboardEntry(nil), o.view.leaderboard...)
}

// Trades returns every participant's trade log in join order.
func (o *Orchestrator) Trades() []ParticipantTrades {
	o.viewMu.RLock()
	defer o.viewMu.RUnlock()
	return append([]ParticipantTrades(nil), o.view.trades...)
}

func (o *Orchestrator) schedule(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(o.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := o.Tick(ctx); err != nil {
				o.log.Error("scheduled tick failed", zap.Error(err))
			}
			if o.Info().Phase == model.PhaseFinalized {
				return
			}
		}
	}
}

func (o *Orchestrator) tickLocked(ctx context.Context) error {
	now := o.opts.Now()
	if !now.Before(o.deadline) {
		return o.finalizeLocked(ctx, TriggerDeadline)
	}

	market := o.opts.Prices.Fetch(ctx)
	o.lastMarket = &market
	for _, p := range o.participants {
		o.step(p, market)
	}
	o.tickCount++
	o.lastTickAt = now
	metrics.BattleTicks.Inc()

	ranking := o.publishView(&market)
	o.opts.Broadcaster.PublishRanking(model.RankingSnapshot{
		BattleID:  o.id,
		Tick:      o.tickCount,
		Ranking:   ranking,
		Timestamp: now,
	})
	o.log.Debug("tick", zap.Int("tick", o.tickCount), zap.Time("market_time", market.Timestamp))
	return nil
}

// step runs decide then apply for one participant. Failures are contained.
func (o *Orchestrator) step(p *participant, market model.MarketSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			o.fault(p, fmt.Errorf("panic: %v", r))
		}
	}()

	decision, err := p.agent.Decide(market)
	if err != nil {
		o.fault(p, fmt.Errorf("decide: %w", err))
		return
	}
	if !decision.IsTrade() {
		return
	}
	ev, err := p.agent.Apply(decision, market)
	if err != nil {
		o.fault(p, fmt.Errorf("apply %s: %w", decision, err))
		return
	}
	metrics.BattleTrades.WithLabelValues(string(ev.Action)).Inc()
	o.log.Debug("trade",
		zap.String("participant", p.id), zap.String("action", string(ev.Action)),
		zap.String("asset", ev.Asset), zap.String("price", ev.Price.String()))
}

func (o *Orchestrator) fault(p *participant, err error) {
	p.faults++
	metrics.ParticipantFaults.Inc()
	o.log.Warn("participant fault", zap.String("participant", p.id), zap.Int("faults", p.faults), zap.Error(err))
}

// advance moves the battle exactly one phase forward.
func (o *Orchestrator) advance(op string, next model.Phase) error {
	if !o.phase.CanAdvanceTo(next) {
		return phaseError(op, o.phase)
	}
	o.phase = next
	return nil
}

func (o *Orchestrator) finalizeLocked(ctx context.Context, trigger string) error {
	if err := o.advance(trigger, model.PhaseFinalizing); err != nil {
		return err
	}

	var market model.MarketSnapshot
	if trigger == TriggerAbort && o.lastMarket != nil {
		market = *o.lastMarket
	} else {
		market = o.opts.Prices.Fetch(ctx)
		o.lastMarket = &market
	}

	ranking, _ := o.standings(&market)
	verdict := o.opts.Outcome.Decide(ranking)
	now := o.opts.Now()
	o.result = &Result{
		Winner:      verdict.Winner,
		PnL:         verdict.PnL,
		PnLBps:      BasisPoints(verdict.PnL),
		Draw:        verdict.Draw,
		Policy:      o.opts.Outcome.Name(),
		Trigger:     trigger,
		Ranking:     ranking,
		FinalizedAt: now,
	}
	o.log.Info("battle finalized",
		zap.String("trigger", trigger), zap.String("winner", verdict.Winner),
		zap.String("pnl", verdict.PnL.StringFixed(2)), zap.Bool("draw", verdict.Draw),
		zap.Int("ticks", o.tickCount))

	err := o.reportLocked(ctx)
	if perr := o.advance(trigger, model.PhaseFinalized); perr != nil {
		return perr
	}
	if o.cancel != nil {
		o.cancel()
	}
	metrics.BattlesActive.Dec()
	metrics.BattlesFinalized.WithLabelValues(trigger).Inc()

	o.publishView(&market)
	o.opts.Broadcaster.PublishRanking(model.RankingSnapshot{
		BattleID:  o.id,
		Tick:      o.tickCount,
		Final:     true,
		Ranking:   ranking,
		Timestamp: now,
	})
	return err
}

func (o *Orchestrator) reportLocked(ctx context.Context) error {
	if o.opts.Ledger == nil || o.result.Winner == "" {
		return nil
	}
	err := o.opts.Ledger.ReportOutcome(ctx, o.id, o.result.Winner, o.result.PnLBps)
	if err != nil && !errors.Is(err, ledger.ErrAlreadyFinalized) {
		metrics.ReportFailures.Inc()
		o.reportErr = &LedgerError{Op: "report_outcome", BattleID: o.id, Err: err}
		o.log.Error("outcome report failed", zap.Error(err))
		return o.reportErr
	}
	o.reportErr = nil
	o.result.Reported = true
	return nil
}

// standings ranks participants against market; a nil market ranks on realized PnL.
func (o *Orchestrator) standings(market *model.MarketSnapshot) ([]model.RankEntry, map[string]decimal.Decimal) {
	pnl := make(map[string]decimal.Decimal, len(o.participants))
	in := make([]analysis.Standing, 0, len(o.participants))
	for _, p := range o.participants {
		v := o.pnlOf(p, market)
		pnl[p.id] = v
		in = append(in, analysis.Standing{ParticipantID: p.id, JoinIndex: p.joinIndex, PnL: v})
	}
	return analysis.RankByPnL(in), pnl
}

func (o *Orchestrator) pnlOf(p *participant, market *model.MarketSnapshot) (v decimal.Decimal) {
	defer func() {
		if r := recover(); r != nil {
			o.fault(p, fmt.Errorf("pnl panic: %v", r))
			v = decimal.Zero
		}
	}()
	if market == nil {
		return p.agent.View().RealizedPnL
	}
	return p.agent.PnL(*market)
}

// publishView rebuilds the read model and returns the ranking it used.
func (o *Orchestrator) publishView(market *model.MarketSnapshot) []model.RankEntry {
	ranking, pnl := o.standings(market)

	leaderboard := make([]model.LeaderboardEntry, 0, len(ranking))
	trades := make([]ParticipantTrades, 0, len(o.participants))
	views := make(map[string]strategy.View, len(o.participants))
	for _, p := range o.participants {
		v := p.agent.View()
		views[p.id] = v
		trades = append(trades, ParticipantTrades{ParticipantID: p.id, Trades: v.Trades})
	}
	for i, r := range ranking {
		p := o.byID[r.ParticipantID]
		v := views[r.ParticipantID]
		leaderboard = append(leaderboard, model.LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.id,
			Config:        p.cfg,
			PnL:           pnl[p.id],
			RealizedPnL:   v.RealizedPnL,
			TradeCount:    len(v.Trades),
			Position:      v.Position,
		})
	}

	info := Info{
		ID:           o.id,
		Phase:        o.phase,
		Participants: len(o.participants),
		TickCount:    o.tickCount,
		CreatedAt:    o.createdAt,
		StartedAt:    o.startedAt,
		Deadline:     o.deadline,
		LastTickAt:   o.lastTickAt,
	}
	if o.result != nil {
		r := *o.result
		info.Result = &r
	}
	if o.reportErr != nil {
		info.ReportError = o.reportErr.Error()
	}

	o.viewMu.Lock()
	o.view = readModel{info: info, leaderboard: leaderboard, trades: trades}
	o.viewMu.Unlock()
	return ranking
}
