package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"battle-arena/internal/model"

	"go.uber.org/zap"
)

type memBattle struct {
	id        uint64
	roster    []string
	configs   map[string]model.StrategyConfig
	started   bool
	startTime time.Time
	outcome   *Outcome
}

// Memory is an in-process ledger. Writes emit events on the attached queue.
type Memory struct {
	mu      sync.Mutex
	battles map[uint64]*memBattle
	lastID  uint64

	events *EventQueue
	now    func() time.Time
	log    *zap.Logger
}

func NewMemory(events *EventQueue, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		battles: make(map[uint64]*memBattle),
		events:  events,
		now:     time.Now,
		log:     logger.Named("ledger"),
	}
}

func (m *Memory) CreateBattle(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	m.battles[m.lastID] = &memBattle{id: m.lastID, configs: map[string]model.StrategyConfig{}}
	m.log.Info("battle created", zap.Uint64("battle_id", m.lastID))
	return m.lastID, nil
}

func (m *Memory) Join(ctx context.Context, battleID uint64, participantID string, cfg model.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	b, err := m.battle(battleID)
	if err == nil {
		switch {
		case b.started:
			err = fmt.Errorf("%w: %d", ErrAlreadyStarted, battleID)
		case b.has(participantID):
			err = fmt.Errorf("%w: %s", ErrAlreadyJoined, participantID)
		default:
			b.roster = append(b.roster, participantID)
			b.configs[participantID] = cfg
		}
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.publish(Event{Kind: EventParticipantJoined, BattleID: battleID, ParticipantID: participantID, Config: cfg})
	return nil
}

func (m *Memory) ActiveBattleID(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastID == 0 {
		return 0, ErrNoActiveBattle
	}
	return m.lastID, nil
}

func (m *Memory) Roster(ctx context.Context, battleID uint64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.battle(battleID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), b.roster...), nil
}

func (m *Memory) Config(ctx context.Context, battleID uint64, participantID string) (model.StrategyConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.battle(battleID)
	if err != nil {
		return model.StrategyConfig{}, err
	}
	cfg, ok := b.configs[participantID]
	if !ok {
		return model.StrategyConfig{}, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	return cfg, nil
}

func (m *Memory) StartBattle(ctx context.Context, battleID uint64) error {
	m.mu.Lock()
	b, err := m.battle(battleID)
	if err == nil {
		switch {
		case b.started:
			err = fmt.Errorf("%w: %d", ErrAlreadyStarted, battleID)
		case len(b.roster) < MinParticipants:
			err = fmt.Errorf("%w: have %d", ErrTooFewParticipants, len(b.roster))
		default:
			b.started = true
			b.startTime = m.now()
		}
	}
	var ev Event
	if err == nil {
		ev = Event{Kind: EventBattleStarted, BattleID: battleID, StartTime: b.startTime, RosterSize: len(b.roster)}
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.publish(ev)
	return nil
}

func (m *Memory) ReportOutcome(ctx context.Context, battleID uint64, winner string, pnlBps int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.battle(battleID)
	if err != nil {
		return err
	}
	if !b.started {
		return fmt.Errorf("%w: %d", ErrNotStarted, battleID)
	}
	if b.outcome != nil {
		return fmt.Errorf("%w: %d", ErrAlreadyFinalized, battleID)
	}
	if !b.has(winner) {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, winner)
	}
	b.outcome = &Outcome{BattleID: battleID, Winner: winner, PnLBps: pnlBps, ReportedAt: m.now()}
	m.log.Info("outcome recorded",
		zap.Uint64("battle_id", battleID), zap.String("winner", winner), zap.Int64("pnl_bps", pnlBps))
	return nil
}

// Outcome returns the recorded result of a battle, if any.
func (m *Memory) Outcome(battleID uint64) (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.battles[battleID]
	if !ok || b.outcome == nil {
		return Outcome{}, false
	}
	return *b.outcome, true
}

func (m *Memory) battle(id uint64) (*memBattle, error) {
	b, ok := m.battles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBattle, id)
	}
	return b, nil
}

func (m *Memory) publish(ev Event) {
	if err := m.events.TryPublish(ev); err != nil {
		m.log.Warn("event dropped", zap.String("kind", string(ev.Kind)), zap.Uint64("battle_id", ev.BattleID), zap.Error(err))
	}
}

func (b *memBattle) has(participantID string) bool {
	_, ok := b.configs[participantID]
	return ok
}
