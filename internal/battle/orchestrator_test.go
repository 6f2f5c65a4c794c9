package battle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"battle-arena/internal/model"
	"battle-arena/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	clock    *fakeClock
	prices   *prices
	reporter *fakeReporter
	bc       *recorder
	o        *Orchestrator
}

func newHarness(t *testing.T, scripts map[string][]float64, p *prices) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock(), prices: p, reporter: &fakeReporter{}, bc: &recorder{}}
	h.o = NewOrchestrator(1, Options{
		// long enough that only the test drives ticks
		TickInterval: time.Hour,
		Now:          h.clock.Now,
		Factory:      scriptedFactory(scripts),
		Prices:       p,
		Ledger:       h.reporter,
		Broadcaster:  h.bc,
	})
	t.Cleanup(h.o.Close)
	return h
}

func TestJoinRules(t *testing.T) {
	h := newHarness(t, nil, newPrices([2]string{"100", "0.2"}))

	require.NoError(t, h.o.Join("alice", aggressive))
	assert.ErrorIs(t, h.o.Join("alice", memecoin), ErrDuplicateParticipant)
	assert.ErrorIs(t, h.o.Join("", memecoin), ErrInvalidParticipant)
	assert.ErrorIs(t, h.o.Join("carol", model.StrategyConfig{AssetFocus: "Yolo"}), model.ErrInvalidFocus)

	require.NoError(t, h.o.Join("bob", model.StrategyConfig{RiskLevel: 500, TradeFrequency: 0, AssetFocus: model.FocusMidVol}))
	board := h.o.Leaderboard()
	require.Len(t, board, 2)
	assert.Equal(t, 100, board[1].Config.RiskLevel)
	assert.Equal(t, 1, board[1].Config.TradeFrequency)
	assert.Len(t, h.bc.joins, 2)

	require.NoError(t, h.o.Start(context.Background(), time.Minute))
	assert.ErrorIs(t, h.o.Join("dave", memecoin), ErrInvalidPhase)
}

func TestStartRequiresTwoParticipants(t *testing.T) {
	h := newHarness(t, nil, newPrices([2]string{"100", "0.2"}))
	ctx := context.Background()

	assert.ErrorIs(t, h.o.Start(ctx, time.Minute), ErrNotEnoughParticipants)
	require.NoError(t, h.o.Join("alice", aggressive))
	assert.ErrorIs(t, h.o.Start(ctx, time.Minute), ErrNotEnoughParticipants)
	assert.Equal(t, model.PhasePending, h.o.Info().Phase)

	require.NoError(t, h.o.Join("bob", memecoin))
	assert.ErrorIs(t, h.o.Start(ctx, 0), ErrInvalidDuration)
	require.NoError(t, h.o.Start(ctx, time.Minute))
	assert.ErrorIs(t, h.o.Start(ctx, time.Minute), ErrInvalidPhase)
}

func TestStartPublishesFirstSnapshotImmediately(t *testing.T) {
	h := newHarness(t, nil, newPrices([2]string{"100", "0.2"}))
	require.NoError(t, h.o.Join("alice", aggressive))
	require.NoError(t, h.o.Join("bob", memecoin))

	require.NoError(t, h.o.Start(context.Background(), time.Minute))

	info := h.o.Info()
	assert.Equal(t, model.PhaseRunning, info.Phase)
	assert.Equal(t, 1, info.TickCount)
	assert.Equal(t, h.clock.Now().Add(time.Minute), info.Deadline)
	require.Len(t, h.bc.Rankings(), 1)
	assert.Equal(t, 1, h.prices.Calls())
}

func TestTwoParticipantBattleEndToEnd(t *testing.T) {
	scripts := map[string][]float64{
		// tick 1: trade, momentum up, pick BTC; tick 2: trade -> +10% take profit
		"alice": {0.1, 0.9, 0.0, 0.1},
		// tick 1: trade, momentum down; tick 2: trade, momentum up, pick DOGE
		"bob": {0.1, 0.2, 0.1, 0.9, 0.0},
	}
	p := newPrices([2]string{"100", "0.2"}, [2]string{"110", "0.2"}, [2]string{"110", "0.21"})
	h := newHarness(t, scripts, p)
	ctx := context.Background()

	require.NoError(t, h.o.Join("alice", aggressive))
	require.NoError(t, h.o.Join("bob", memecoin))
	require.NoError(t, h.o.Start(ctx, 60*time.Second))

	board := h.o.Leaderboard()
	require.NotNil(t, board[0].Position)
	assert.Equal(t, "alice", board[0].ParticipantID)
	assert.Equal(t, model.SymbolBTC, board[0].Position.Asset)
	assert.Equal(t, "0.5", board[0].Position.SizeFraction.String())

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.o.Tick(ctx))
	board = h.o.Leaderboard()
	assert.Equal(t, "5", board[0].RealizedPnL.String())
	assert.Nil(t, board[0].Position)
	require.NotNil(t, board[1].Position)
	assert.Equal(t, model.SymbolDOGE, board[1].Position.Asset)
	assert.Equal(t, "0.25", board[1].Position.SizeFraction.String())

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.o.Tick(ctx))

	info := h.o.Info()
	assert.Equal(t, model.PhaseFinalized, info.Phase)
	assert.Equal(t, 2, info.TickCount)
	require.NotNil(t, info.Result)
	assert.Equal(t, "alice", info.Result.Winner)
	assert.EqualValues(t, 500, info.Result.PnLBps)
	assert.Equal(t, TriggerDeadline, info.Result.Trigger)
	assert.True(t, info.Result.Reported)
	assert.Equal(t, []report{{BattleID: 1, Winner: "alice", Bps: 500}}, h.reporter.reports)

	final := h.o.Leaderboard()
	assert.Equal(t, "5", final[0].PnL.String())
	assert.Equal(t, 2, final[0].TradeCount)
	assert.Equal(t, "1.25", final[1].PnL.String())

	rankings := h.bc.Rankings()
	require.Len(t, rankings, 3)
	assert.True(t, rankings[2].Final)
	assert.Equal(t, "alice", rankings[2].Ranking[0].ParticipantID)

	// Ticks after finalization change nothing.
	calls := p.Calls()
	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.o.Tick(ctx))
	assert.Equal(t, calls, p.Calls())
	assert.Equal(t, 1, h.reporter.Calls())
	assert.Len(t, h.bc.Rankings(), 3)

	trades := h.o.Trades()
	require.Len(t, trades, 2)
	assert.Len(t, trades[0].Trades, 2)
	assert.Len(t, trades[1].Trades, 1)
}

func TestRankingTiesFollowJoinOrder(t *testing.T) {
	h := newHarness(t, nil, newPrices([2]string{"100", "0.2"}))
	for _, id := range []string{"zed", "amy", "kim"} {
		require.NoError(t, h.o.Join(id, memecoin))
	}
	require.NoError(t, h.o.Start(context.Background(), time.Minute))

	snap := h.bc.Rankings()[0]
	ids := []string{}
	for _, r := range snap.Ranking {
		ids = append(ids, r.ParticipantID)
		assert.True(t, r.PnL.IsZero())
	}
	assert.Equal(t, []string{"zed", "amy", "kim"}, ids)
}

func TestLedgerFailureStillFinalizes(t *testing.T) {
	scripts := map[string][]float64{"alice": {0.1, 0.9, 0.0}}
	h := newHarness(t, scripts, newPrices([2]string{"100", "0.2"}, [2]string{"103", "0.2"}))
	ctx := context.Background()
	require.NoError(t, h.o.Join("alice", aggressive))
	require.NoError(t, h.o.Join("bob", memecoin))
	require.NoError(t, h.o.Start(ctx, 30*time.Second))

	h.reporter.setFail(true)
	h.clock.Advance(30 * time.Second)
	err := h.o.Tick(ctx)

	var ledgerErr *LedgerError
	require.True(t, errors.As(err, &ledgerErr))
	assert.Equal(t, "report_outcome", ledgerErr.Op)

	info := h.o.Info()
	assert.Equal(t, model.PhaseFinalized, info.Phase)
	assert.NotEmpty(t, info.ReportError)
	assert.False(t, info.Result.Reported)
	assert.Equal(t, "alice", info.Result.Winner)
	assert.EqualValues(t, 150, info.Result.PnLBps)

	h.reporter.setFail(false)
	require.NoError(t, h.o.RetryReport(ctx))
	info = h.o.Info()
	assert.True(t, info.Result.Reported)
	assert.Empty(t, info.ReportError)

	require.NoError(t, h.o.RetryReport(ctx))
	assert.Equal(t, 2, h.reporter.Calls())
}

func TestRetryReportRequiresFinalized(t *testing.T) {
	h := newHarness(t, nil, newPrices([2]string{"100", "0.2"}))
	assert.ErrorIs(t, h.o.RetryReport(context.Background()), ErrInvalidPhase)
}

func TestAbortUsesLatestSnapshot(t *testing.T) {
	scripts := map[string][]float64{"alice": {0.1, 0.9, 0.0}}
	h := newHarness(t, scripts, newPrices([2]string{"100", "0.2"}, [2]string{"200", "0.2"}))
	ctx := context.Background()

	assert.ErrorIs(t, h.o.Abort(ctx), ErrInvalidPhase)

	require.NoError(t, h.o.Join("alice", aggressive))
	require.NoError(t, h.o.Join("bob", memecoin))
	require.NoError(t, h.o.Start(ctx, time.Hour))

	require.NoError(t, h.o.Abort(ctx))
	assert.Equal(t, 1, h.prices.Calls())

	info := h.o.Info()
	assert.Equal(t, model.PhaseFinalized, info.Phase)
	assert.Equal(t, TriggerAbort, info.Result.Trigger)
	// BTC is still marked at the entry price, so nobody is ahead.
	assert.Equal(t, "alice", info.Result.Winner)
	assert.EqualValues(t, 0, info.Result.PnLBps)
	assert.ErrorIs(t, h.o.Abort(ctx), ErrInvalidPhase)

	select {
	case <-h.o.Done():
	case <-time.After(time.Second):
		t.Fatal("schedule still running after abort")
	}
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }
func (panicky) Decide(model.MarketSnapshot) (model.Decision, error) {
	panic("agent exploded")
}
func (panicky) Apply(model.Decision, model.MarketSnapshot) (*model.TradeEvent, error) {
	return nil, nil
}
func (panicky) PnL(model.MarketSnapshot) decimal.Decimal { return decimal.Zero }
func (panicky) View() strategy.View                      { return strategy.View{} }

func TestParticipantFaultDoesNotAbortRound(t *testing.T) {
	clock := newFakeClock()
	good := scriptedFactory(map[string][]float64{"alice": {0.1, 0.9, 0.0}})
	o := NewOrchestrator(9, Options{
		TickInterval: time.Hour,
		Now:          clock.Now,
		Prices:       newPrices([2]string{"100", "0.2"}),
		Factory: func(id string, cfg model.StrategyConfig) strategy.Strategy {
			if id == "boom" {
				return panicky{}
			}
			return good(id, cfg)
		},
	})
	defer o.Close()

	require.NoError(t, o.Join("boom", memecoin))
	require.NoError(t, o.Join("alice", aggressive))
	require.NoError(t, o.Start(context.Background(), time.Minute))

	// Both are flat, so join order decides the ranking.
	board := o.Leaderboard()
	require.Len(t, board, 2)
	assert.Equal(t, "alice", board[1].ParticipantID)
	assert.Equal(t, 1, board[1].TradeCount)
	assert.Equal(t, 0, board[0].TradeCount)
	assert.Equal(t, 1, o.Info().TickCount)
}

func TestScheduleRunsToDeadline(t *testing.T) {
	rep := &fakeReporter{}
	o := NewOrchestrator(3, Options{
		TickInterval: 10 * time.Millisecond,
		Prices:       newPrices([2]string{"100", "0.2"}),
		Ledger:       rep,
	})
	require.NoError(t, o.Join("alice", aggressive))
	require.NoError(t, o.Join("bob", memecoin))
	require.NoError(t, o.Start(context.Background(), 45*time.Millisecond))

	select {
	case <-o.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("battle did not finalize")
	}
	info := o.Info()
	assert.Equal(t, model.PhaseFinalized, info.Phase)
	assert.GreaterOrEqual(t, info.TickCount, 2)
	assert.Equal(t, 1, rep.Calls())
}

func TestConcurrentCallersFinalizeOnce(t *testing.T) {
	rep := &fakeReporter{}
	bc := &recorder{}
	o := NewOrchestrator(11, Options{
		TickInterval: time.Millisecond,
		Factory:      scriptedFactory(nil),
		Prices:       newPrices([2]string{"100", "0.2"}),
		Ledger:       rep,
		Broadcaster:  bc,
	})
	t.Cleanup(o.Close)
	require.NoError(t, o.Join("alice", aggressive))
	require.NoError(t, o.Join("bob", memecoin))

	ctx := context.Background()
	require.NoError(t, o.Start(ctx, 25*time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; ; n++ {
				select {
				case <-o.Done():
					return
				default:
				}
				switch (i + n) % 5 {
				case 0:
					_ = o.Tick(ctx)
				case 1:
					if n > 40 {
						_ = o.Abort(ctx)
					}
				case 2:
					_ = o.Info()
				case 3:
					_ = o.Leaderboard()
				case 4:
					_ = o.Trades()
				}
			}
		}(i)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("callers still running after finalization")
	}

	finals := func() int {
		n := 0
		for _, snap := range bc.Rankings() {
			if snap.Final {
				n++
			}
		}
		return n
	}
	// Done can close before the finalizing caller publishes.
	require.Eventually(t, func() bool { return finals() > 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, model.PhaseFinalized, o.Info().Phase)
	assert.Equal(t, 1, rep.Calls())
	assert.Equal(t, 1, finals())
}

func TestPhaseAdvancesOneStepAtATime(t *testing.T) {
	h := newHarness(t, nil, newPrices([2]string{"100", "0.2"}))

	assert.ErrorIs(t, h.o.advance("finalize", model.PhaseFinalized), ErrInvalidPhase)
	assert.ErrorIs(t, h.o.advance("finalize", model.PhaseFinalizing), ErrInvalidPhase)
	assert.Equal(t, model.PhasePending, h.o.Info().Phase)

	require.NoError(t, h.o.advance("start", model.PhaseRunning))
	assert.ErrorIs(t, h.o.advance("start", model.PhaseRunning), ErrInvalidPhase)
	assert.ErrorIs(t, h.o.advance("rewind", model.PhasePending), ErrInvalidPhase)
	assert.Equal(t, model.PhaseRunning, h.o.Info().Phase)
}

func TestBasisPoints(t *testing.T) {
	cases := map[string]int64{"5": 500, "1.234": 123, "1.235": 124, "-0.5": -50, "0": 0}
	for in, want := range cases {
		assert.Equal(t, want, BasisPoints(decimal.RequireFromString(in)), in)
	}
}
