package battle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"battle-arena/internal/ledger"
	"battle-arena/internal/model"

	"go.uber.org/zap"
)

const (
	DefaultDuration  = 30 * time.Minute
	DefaultRetention = time.Hour
)

type RegistryOptions struct {
	// Battle is the template every orchestrator is built from. Its Ledger is
	// replaced with the registry's ledger.
	Battle          Options
	Ledger          ledger.Adapter
	DefaultDuration time.Duration
	// Retention is how long a finalized battle stays queryable before the janitor evicts it.
	Retention time.Duration
}

// Registry owns every battle known to the process and keeps it in step with the ledger.
type Registry struct {
	opts RegistryOptions
	log  *zap.Logger

	mu      sync.RWMutex
	battles map[uint64]*Orchestrator

	// startMu serializes manual starts with BattleStarted events.
	startMu sync.Mutex
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	opts.Battle = opts.Battle.withDefaults()
	if opts.Ledger != nil {
		opts.Battle.Ledger = opts.Ledger
	}
	return &Registry{
		opts:    opts,
		log:     opts.Battle.Logger.Named("registry"),
		battles: make(map[uint64]*Orchestrator),
	}
}

func (r *Registry) DefaultDuration() time.Duration { return r.opts.DefaultDuration }

// Create registers a new pending battle.
func (r *Registry) Create(id uint64) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.battles[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrBattleExists, id)
	}
	o := NewOrchestrator(id, r.opts.Battle)
	r.battles[id] = o
	return o, nil
}

func (r *Registry) Get(id uint64) (*Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.battles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBattleNotFound, id)
	}
	return o, nil
}

func (r *Registry) getOrCreate(id uint64) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.battles[id]
	if !ok {
		o = NewOrchestrator(id, r.opts.Battle)
		r.battles[id] = o
		r.log.Info("battle registered", zap.Uint64("battle_id", id))
	}
	return o
}

// List returns every battle ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.battles))
	for _, o := range r.battles {
		out = append(out, o.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Current resolves the ledger's active battle, syncing it in if needed.
func (r *Registry) Current(ctx context.Context) (*Orchestrator, error) {
	if r.opts.Ledger == nil {
		return r.latest()
	}
	id, err := r.opts.Ledger.ActiveBattleID(ctx)
	if errors.Is(err, ledger.ErrNoActiveBattle) {
		return nil, fmt.Errorf("%w: no active battle", ErrBattleNotFound)
	}
	if err != nil {
		return nil, &LedgerError{Op: "active_battle", Err: err}
	}
	return r.Sync(ctx, id)
}

func (r *Registry) latest() (*Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *Orchestrator
	for id, o := range r.battles {
		if best == nil || id > best.id {
			best = o
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no battles", ErrBattleNotFound)
	}
	return best, nil
}

// Sync makes sure battle id exists locally and that a pending battle holds
// every participant the ledger knows about.
func (r *Registry) Sync(ctx context.Context, id uint64) (*Orchestrator, error) {
	if r.opts.Ledger == nil {
		return r.Get(id)
	}
	roster, err := r.opts.Ledger.Roster(ctx, id)
	if errors.Is(err, ledger.ErrUnknownBattle) {
		return nil, fmt.Errorf("%w: %d", ErrBattleNotFound, id)
	}
	if err != nil {
		return nil, &LedgerError{Op: "roster", BattleID: id, Err: err}
	}

	o := r.getOrCreate(id)
	if o.Info().Phase != model.PhasePending {
		return o, nil
	}
	for _, pid := range roster {
		cfg, err := r.opts.Ledger.Config(ctx, id, pid)
		if err != nil {
			return nil, &LedgerError{Op: "config", BattleID: id, Err: err}
		}
		if err := o.Join(pid, cfg); err != nil && !errors.Is(err, ErrDuplicateParticipant) {
			r.log.Warn("skipping ledger participant", zap.Uint64("battle_id", id), zap.String("participant", pid), zap.Error(err))
		}
	}
	return o, nil
}

// StartFromLedger is the manual start command: it checks the local roster,
// asks the ledger to start the battle and only then starts the orchestrator.
// A ledger failure leaves the battle pending.
func (r *Registry) StartFromLedger(ctx context.Context, id uint64, duration time.Duration) (*Orchestrator, error) {
	if duration == 0 {
		duration = r.opts.DefaultDuration
	}
	if duration < 0 {
		return nil, ErrInvalidDuration
	}

	r.startMu.Lock()
	defer r.startMu.Unlock()

	o, err := r.Sync(ctx, id)
	if err != nil {
		return nil, err
	}
	info := o.Info()
	if info.Phase != model.PhasePending {
		return o, phaseError("start", info.Phase)
	}
	if info.Participants < ledger.MinParticipants {
		return o, fmt.Errorf("%w: have %d", ErrNotEnoughParticipants, info.Participants)
	}
	if r.opts.Ledger != nil {
		if err := r.opts.Ledger.StartBattle(ctx, id); err != nil {
			return o, &LedgerError{Op: "start_battle", BattleID: id, Err: err}
		}
	}
	return o, o.Start(ctx, duration)
}

// Evict drops a battle that is not running.
func (r *Registry) Evict(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.battles[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBattleNotFound, id)
	}
	if phase := o.Info().Phase; phase == model.PhaseRunning || phase == model.PhaseFinalizing {
		return phaseError("evict", phase)
	}
	delete(r.battles, id)
	r.log.Info("battle evicted", zap.Uint64("battle_id", id))
	return nil
}

// Janitor evicts finalized battles older than the retention window until ctx ends.
func (r *Registry) Janitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	cutoff := r.opts.Battle.Now().Add(-r.opts.Retention)
	for _, info := range r.List() {
		if info.Phase != model.PhaseFinalized || info.Result == nil {
			continue
		}
		if info.Result.FinalizedAt.Before(cutoff) {
			_ = r.Evict(info.ID)
		}
	}
}

// Consume applies ledger events until ctx ends or the queue closes.
func (r *Registry) Consume(ctx context.Context, q *ledger.EventQueue) {
	q.Run(ctx, func(e ledger.Event) { r.HandleEvent(ctx, e) })
}

func (r *Registry) HandleEvent(ctx context.Context, e ledger.Event) {
	log := r.log.With(zap.String("event", string(e.Kind)), zap.Uint64("battle_id", e.BattleID))
	switch e.Kind {
	case ledger.EventParticipantJoined:
		o := r.getOrCreate(e.BattleID)
		err := o.Join(e.ParticipantID, e.Config)
		switch {
		case err == nil:
		case errors.Is(err, ErrDuplicateParticipant):
			log.Debug("participant already present", zap.String("participant", e.ParticipantID))
		default:
			log.Warn("join rejected", zap.String("participant", e.ParticipantID), zap.Error(err))
		}

	case ledger.EventBattleStarted:
		r.startMu.Lock()
		defer r.startMu.Unlock()
		o, err := r.Sync(ctx, e.BattleID)
		if err != nil {
			log.Error("sync failed", zap.Error(err))
			return
		}
		if o.Info().Phase != model.PhasePending {
			log.Debug("battle already started")
			return
		}
		if err := o.Start(ctx, r.remaining(e.StartTime)); err != nil {
			log.Error("start failed", zap.Int("roster_size", e.RosterSize), zap.Error(err))
		}

	default:
		log.Warn("unknown ledger event")
	}
}

// remaining is what is left of the default duration for a battle the ledger
// started at startTime. A late event still gets one tick interval so the
// battle finalizes through its schedule.
func (r *Registry) remaining(startTime time.Time) time.Duration {
	if startTime.IsZero() {
		return r.opts.DefaultDuration
	}
	left := startTime.Add(r.opts.DefaultDuration).Sub(r.opts.Battle.Now())
	if left < r.opts.Battle.TickInterval {
		return r.opts.Battle.TickInterval
	}
	return left
}

// Close stops every battle's schedule.
func (r *Registry) Close() {
	r.mu.RLock()
	all := make([]*Orchestrator, 0, len(r.battles))
	for _, o := range r.battles {
		all = append(all, o)
	}
	r.mu.RUnlock()
	for _, o := range all {
		o.Close()
	}
}
