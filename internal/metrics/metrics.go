package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PriceCacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "arena_price_cache_hits_total", Help: "Price fetches served from the fresh cache"})
	PriceRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "arena_price_refresh_total", Help: "Upstream price refresh attempts by result (ok, stale, fallback)"}, []string{"result"})

	BattlesActive     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "arena_battles_running", Help: "Battles currently in the RUNNING phase"})
	BattleTicks       = prometheus.NewCounter(prometheus.CounterOpts{Name: "arena_battle_ticks_total", Help: "Completed trading rounds across all battles"})
	BattleTrades      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "arena_battle_trades_total", Help: "Executed simulated trades by action"}, []string{"action"})
	ParticipantFaults = prometheus.NewCounter(prometheus.CounterOpts{Name: "arena_participant_faults_total", Help: "Decide/apply failures isolated during a round"})
	BattlesFinalized  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "arena_battles_finalized_total", Help: "Finalized battles by trigger (deadline, abort)"}, []string{"trigger"})

	LedgerCalls    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "arena_ledger_calls_total", Help: "Ledger adapter calls by operation and result"}, []string{"op", "result"})
	ReportFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "arena_outcome_report_failures_total", Help: "Outcome reports the ledger did not accept"})

	BroadcastDrops = prometheus.NewCounter(prometheus.CounterOpts{Name: "arena_broadcast_dropped_total", Help: "Broadcast messages dropped because a queue was full"})
	WSClients      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "arena_ws_clients", Help: "Connected WebSocket observers"})
)

func init() {
	prometheus.MustRegister(
		PriceCacheHits, PriceRefreshes,
		BattlesActive, BattleTicks, BattleTrades, ParticipantFaults, BattlesFinalized,
		LedgerCalls, ReportFailures,
		BroadcastDrops, WSClients,
	)
}
