package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"battle-arena/internal/model"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

type EventKind string

const (
	EventParticipantJoined EventKind = "PARTICIPANT_JOINED"
	EventBattleStarted     EventKind = "BATTLE_STARTED"
)

// Event is a ledger notification. Joined events fill ParticipantID and Config;
// started events fill StartTime and RosterSize.
type Event struct {
	Kind          EventKind
	BattleID      uint64
	ParticipantID string
	Config        model.StrategyConfig
	StartTime     time.Time
	RosterSize    int
}

// EventQueue is a bounded, non-blocking event queue.
type EventQueue struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventQueue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *EventQueue) TryPublish(e Event) error {
	if q == nil {
		return nil
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new events.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *EventQueue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
