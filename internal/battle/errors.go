package battle

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateParticipant  = errors.New("participant already joined")
	ErrInvalidParticipant    = errors.New("participant id is required")
	ErrNotEnoughParticipants = errors.New("at least two participants are required")
	ErrInvalidPhase          = errors.New("operation not allowed in the current phase")
	ErrBattleNotFound        = errors.New("battle not found")
	ErrBattleExists          = errors.New("battle already exists")
	ErrInvalidDuration       = errors.New("duration must be positive")
)

// LedgerError wraps a failed ledger call. Op names the call.
type LedgerError struct {
	Op       string
	BattleID uint64
	Err      error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s for battle %d: %v", e.Op, e.BattleID, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

func phaseError(op string, phase fmt.Stringer) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidPhase, op, phase)
}
