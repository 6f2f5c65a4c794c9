package ledger

import (
	"context"
	"time"

	"battle-arena/internal/metrics"
	"battle-arena/internal/model"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultCallTimeout = 10 * time.Second
	DefaultRetries     = 2
	DefaultBackoff     = 500 * time.Millisecond
)

type RetryOptions struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first failure.
	Retries int
	// Backoff is the first pause; it doubles after each failed attempt.
	Backoff time.Duration
	Logger  *zap.Logger
}

// Retrying wraps an Adapter with per-call timeout, retries and exponential backoff.
// Permanent ledger errors are returned without retrying.
type Retrying struct {
	next Adapter
	opts RetryOptions
	log  *zap.Logger
}

func WithRetry(next Adapter, opts RetryOptions) *Retrying {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCallTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Retrying{next: next, opts: opts, log: opts.Logger.Named("ledger-retry")}
}

func (r *Retrying) ActiveBattleID(ctx context.Context) (id uint64, err error) {
	err = r.do(ctx, "active_battle", func(ctx context.Context) error {
		id, err = r.next.ActiveBattleID(ctx)
		return err
	})
	return id, err
}

func (r *Retrying) Roster(ctx context.Context, battleID uint64) (ids []string, err error) {
	err = r.do(ctx, "roster", func(ctx context.Context) error {
		ids, err = r.next.Roster(ctx, battleID)
		return err
	})
	return ids, err
}

func (r *Retrying) Config(ctx context.Context, battleID uint64, participantID string) (cfg model.StrategyConfig, err error) {
	err = r.do(ctx, "config", func(ctx context.Context) error {
		cfg, err = r.next.Config(ctx, battleID, participantID)
		return err
	})
	return cfg, err
}

func (r *Retrying) StartBattle(ctx context.Context, battleID uint64) error {
	return r.do(ctx, "start_battle", func(ctx context.Context) error {
		return r.next.StartBattle(ctx, battleID)
	})
}

func (r *Retrying) ReportOutcome(ctx context.Context, battleID uint64, winner string, pnlBps int64) error {
	return r.do(ctx, "report_outcome", func(ctx context.Context) error {
		return r.next.ReportOutcome(ctx, battleID, winner, pnlBps)
	})
}

func (r *Retrying) do(ctx context.Context, op string, call func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.Backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.Retries)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
		err := call(cctx)
		if err != nil && Permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.log.Warn("ledger call failed",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
	})
	if err != nil {
		metrics.LedgerCalls.WithLabelValues(op, "error").Inc()
		return err
	}
	metrics.LedgerCalls.WithLabelValues(op, "ok").Inc()
	return nil
}
