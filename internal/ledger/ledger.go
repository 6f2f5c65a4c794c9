// Package ledger is the boundary to the external record of battles: who
// joined with which configuration, when a battle started and who won.
package ledger

import (
	"context"
	"errors"
	"time"

	"battle-arena/internal/model"
)

var (
	ErrNoActiveBattle     = errors.New("no active battle")
	ErrUnknownBattle      = errors.New("unknown battle")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrAlreadyJoined      = errors.New("participant already joined")
	ErrAlreadyStarted     = errors.New("battle already started")
	ErrNotStarted         = errors.New("battle not started")
	ErrAlreadyFinalized   = errors.New("battle already finalized")
	ErrTooFewParticipants = errors.New("battle needs at least two participants")
)

// MinParticipants is the smallest roster the ledger accepts for a start.
const MinParticipants = 2

// Adapter is what the orchestration side reads from and reports to.
type Adapter interface {
	ActiveBattleID(ctx context.Context) (uint64, error)
	Roster(ctx context.Context, battleID uint64) ([]string, error)
	Config(ctx context.Context, battleID uint64, participantID string) (model.StrategyConfig, error)
	StartBattle(ctx context.Context, battleID uint64) error
	ReportOutcome(ctx context.Context, battleID uint64, winner string, pnlBps int64) error
}

// Registrar is the write path participants use to enter battles.
type Registrar interface {
	CreateBattle(ctx context.Context) (uint64, error)
	Join(ctx context.Context, battleID uint64, participantID string, cfg model.StrategyConfig) error
}

// Outcome is a reported battle result.
type Outcome struct {
	BattleID   uint64    `json:"battleId"`
	Winner     string    `json:"winner"`
	PnLBps     int64     `json:"pnlBps"`
	ReportedAt time.Time `json:"reportedAt"`
}

// Permanent reports whether retrying err cannot change the answer.
func Permanent(err error) bool {
	for _, target := range []error{
		ErrNoActiveBattle, ErrUnknownBattle, ErrUnknownParticipant, ErrAlreadyJoined,
		ErrAlreadyStarted, ErrNotStarted, ErrAlreadyFinalized, ErrTooFewParticipants,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
