package strategy

import (
	"hash/fnv"
	"math/rand"
	"time"

	"battle-arena/internal/model"

	"github.com/shopspring/decimal"
)

// Strategy is the per-participant decision agent driven by the battle orchestrator.
// Apply mutates the agent's portfolio; PnL and View are pure reads.
type Strategy interface {
	Name() string
	Decide(market model.MarketSnapshot) (model.Decision, error)
	Apply(decision model.Decision, market model.MarketSnapshot) (*model.TradeEvent, error)
	PnL(market model.MarketSnapshot) decimal.Decimal
	View() View
}

// View is a copy of the agent's portfolio state.
type View struct {
	RealizedPnL decimal.Decimal
	Position    *model.Position
	Trades      []model.TradeEvent
}

// RandSource is the single source of randomness for trade decisions.
// *math/rand.Rand satisfies it; tests substitute a scripted sequence.
type RandSource interface {
	Float64() float64
}

// Factory builds the agent for one participant.
type Factory func(participantID string, cfg model.StrategyConfig) Strategy

// SeededRand gives each participant an independent math/rand stream.
func SeededRand(participantID string) RandSource {
	h := fnv.New64a()
	_, _ = h.Write([]byte(participantID))
	return rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(h.Sum64())))
}
