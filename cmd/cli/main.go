package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"battle-arena/internal/app"
	"battle-arena/internal/backtest"
	"battle-arena/internal/battle"
	"battle-arena/internal/config"
	"battle-arena/internal/model"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}

	switch os.Args[1] {
	case "simulate":
		cmdSimulate(os.Args[2:])
	case "prices":
		cmdPrices(os.Args[2:])
	case "history":
		cmdHistory(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli simulate --config examples/arena.yaml --out results/trades.csv")
	fmt.Println("  cli simulate --entrant alice:80:60:HighVol --entrant bob:20:30:LowVol --duration 30m --seed 7")
	fmt.Println("  cli prices [--config examples/arena.yaml]")
	fmt.Println("  cli history --symbol BTC --days 7")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - simulate runs a whole battle offline against an in-memory ledger and writes one CSV row per trade")
	fmt.Println("  - entrants are id:risk:frequency:focus; focus is LowVol, MidVol or HighVol")
}

type entrantFlags []string

func (e *entrantFlags) String() string     { return strings.Join(*e, ",") }
func (e *entrantFlags) Set(v string) error { *e = append(*e, v); return nil }

func cmdSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config (optional)")
	outPath := fs.String("out", "", "Output CSV path (default: simulation.output or results/trades.csv)")
	duration := fs.Duration("duration", 0, "Battle length (default: simulation.duration)")
	tick := fs.Duration("tick", 0, "Round interval (default: simulation.tick_interval)")
	seed := fs.Int64("seed", 0, "Random seed; 0 uses the clock")
	walk := fs.Float64("walk", -1, "Per-round price walk scale (default: simulation.walk_scale)")
	verbose := fs.Bool("v", false, "Log every battle event")
	var entrants entrantFlags
	fs.Var(&entrants, "entrant", "Participant as id:risk:frequency:focus (repeatable)")
	_ = fs.Parse(args)

	cfg := mustConfig(*cfgPath)
	sim := cfg.Simulation
	if *duration > 0 {
		sim.Duration = *duration
	}
	if *tick > 0 {
		sim.TickInterval = *tick
	}
	if *seed != 0 {
		sim.Seed = *seed
	}
	if *walk >= 0 {
		sim.WalkScale = *walk
	}
	if *outPath != "" {
		sim.Output = *outPath
	}
	if sim.Output == "" {
		sim.Output = "results/trades.csv"
	}
	for _, raw := range entrants {
		e, err := parseEntrant(raw)
		if err != nil {
			panic(err)
		}
		sim.Entrants = config.MergeEntrants(sim.Entrants, []config.Entrant{e})
	}
	if len(sim.Entrants) < 2 {
		fmt.Println("simulate needs at least two entrants (--entrant or simulation.entrants)")
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		logger = mustLogger(cfg)
	}
	prices, err := app.Prices(cfg.Prices, logger.Named("prices"))
	if err != nil {
		panic(err)
	}
	policy, err := battle.ParseOutcomePolicy(cfg.Battle.OutcomePolicy, cfg.Battle.DrawMargin)
	if err != nil {
		panic(err)
	}

	params := backtest.Params{
		Duration:     sim.Duration,
		TickInterval: sim.TickInterval,
		Seed:         sim.Seed,
		WalkScale:    sim.WalkScale,
	}
	for _, e := range sim.Entrants {
		params.Entrants = append(params.Entrants, backtest.Entrant{ID: e.ID, Config: e.Config})
	}

	res, err := backtest.New(prices, policy, logger).Run(context.Background(), params)
	if err != nil {
		panic(err)
	}

	if err := os.MkdirAll(filepath.Dir(sim.Output), 0o755); err != nil {
		panic(err)
	}
	if err := backtest.WriteTradesCSVFile(sim.Output, res.Rows); err != nil {
		panic(err)
	}

	fmt.Printf("Wrote %d trades to %s\n", len(res.Rows), sim.Output)
	fmt.Printf("%-4s %-16s %-10s %-10s %-7s %-7s %-8s\n", "rank", "participant", "pnl%", "realized%", "trades", "wins", "winrate")
	for _, e := range res.Leaderboard {
		st := res.Stats[e.ParticipantID]
		fmt.Printf("%-4d %-16s %-10s %-10s %-7d %-7d %-8.2f\n",
			e.Rank, e.ParticipantID, e.PnL.StringFixed(4), e.RealizedPnL.StringFixed(4), e.TradeCount, st.Wins, st.WinRate)
	}
	if r := res.Info.Result; r != nil {
		verdict := "winner"
		if r.Draw {
			verdict = "winner (draw margin)"
		}
		fmt.Printf("Ticks=%d %s=%s PnL=%s%% (%d bps) policy=%s\n",
			res.Info.TickCount, verdict, r.Winner, r.PnL.StringFixed(4), r.PnLBps, r.Policy)
	}
}

func cmdPrices(args []string) {
	fs := flag.NewFlagSet("prices", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config (optional)")
	_ = fs.Parse(args)

	cfg := mustConfig(*cfgPath)
	prices, err := app.Prices(cfg.Prices, zap.NewNop())
	if err != nil {
		panic(err)
	}
	snap := prices.Fetch(context.Background())

	symbols := make([]string, 0, len(snap.Prices))
	for s := range snap.Prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	fmt.Printf("as of %s (volatility %.2f)\n", snap.Timestamp.UTC().Format(time.RFC3339), snap.VolatilityHint)
	for _, s := range symbols {
		fmt.Printf("%-6s %s\n", s, snap.Prices[s].String())
	}
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config (optional)")
	symbol := fs.String("symbol", model.SymbolBTC, "Universe symbol")
	days := fs.Int("days", 1, "Days of history")
	_ = fs.Parse(args)

	cfg := mustConfig(*cfgPath)
	prices, err := app.Prices(cfg.Prices, zap.NewNop())
	if err != nil {
		panic(err)
	}
	points, err := prices.History(context.Background(), strings.ToUpper(*symbol), *days)
	if err != nil {
		panic(err)
	}
	for _, p := range points {
		fmt.Printf("%s %s\n", p.Time.UTC().Format(time.RFC3339), p.Price.String())
	}
	fmt.Printf("%d points\n", len(points))
}

func mustConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func mustLogger(cfg *config.Config) *zap.Logger {
	l, err := cfg.Logging.NewLogger()
	if err != nil {
		panic(err)
	}
	return l
}

// parseEntrant reads id:risk:frequency:focus.
func parseEntrant(s string) (config.Entrant, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] == "" {
		return config.Entrant{}, fmt.Errorf("entrant %q: want id:risk:frequency:focus", s)
	}
	risk, err := strconv.Atoi(parts[1])
	if err != nil {
		return config.Entrant{}, fmt.Errorf("entrant %q: risk: %w", s, err)
	}
	freq, err := strconv.Atoi(parts[2])
	if err != nil {
		return config.Entrant{}, fmt.Errorf("entrant %q: frequency: %w", s, err)
	}
	focus, err := model.ParseAssetFocus(parts[3])
	if err != nil {
		return config.Entrant{}, fmt.Errorf("entrant %q: %w", s, err)
	}
	return config.Entrant{
		ID:     parts[0],
		Config: model.StrategyConfig{RiskLevel: risk, TradeFrequency: freq, AssetFocus: focus},
	}, nil
}
