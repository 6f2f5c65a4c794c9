// Package app turns a loaded config into the running components shared by the binaries.
package app

import (
	"fmt"

	"battle-arena/internal/battle"
	"battle-arena/internal/config"
	"battle-arena/internal/data"
	"battle-arena/internal/ledger"

	"go.uber.org/zap"
)

// Ledger is a ledger implementation that both records and serves battles.
type Ledger interface {
	ledger.Adapter
	ledger.Registrar
}

// Prices builds the cached price source for the configured provider.
func Prices(cfg config.PricesConfig, logger *zap.Logger) (*data.PriceSource, error) {
	var provider data.Provider
	switch cfg.Provider {
	case config.ProviderCoinGecko:
		provider = data.NewCoinGeckoClient(cfg.APIKey, cfg.BaseURL, logger)
	case config.ProviderFile:
		provider = data.NewFileProvider(cfg.FixtureFile)
	default:
		return nil, fmt.Errorf("unknown price provider %q", cfg.Provider)
	}
	return data.NewPriceSource(provider, data.Options{
		TTL:     cfg.CacheTTL,
		Timeout: cfg.Timeout,
		Logger:  logger,
	}), nil
}

// OpenLedger opens the configured ledger; events emitted on writes go to q.
// The returned close func is never nil.
func OpenLedger(cfg config.LedgerConfig, q *ledger.EventQueue, logger *zap.Logger) (Ledger, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return ledger.NewMemory(q, logger), func() error { return nil }, nil
	case config.DriverPostgres:
		pg, err := ledger.OpenPostgres(ledger.Option{
			URL:      cfg.Postgres.URL,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, q, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}

// Retrying wraps l with the configured timeout and retry policy.
func Retrying(cfg config.LedgerConfig, l ledger.Adapter, logger *zap.Logger) *ledger.Retrying {
	return ledger.WithRetry(l, ledger.RetryOptions{
		Timeout: cfg.Timeout,
		Retries: cfg.Retries,
		Backoff: cfg.Backoff,
		Logger:  logger,
	})
}

// BattleOptions is the orchestrator template described by cfg.
func BattleOptions(cfg config.BattleConfig, prices battle.PriceFetcher, logger *zap.Logger) (battle.Options, error) {
	policy, err := battle.ParseOutcomePolicy(cfg.OutcomePolicy, cfg.DrawMargin)
	if err != nil {
		return battle.Options{}, err
	}
	return battle.Options{
		TickInterval: cfg.TickInterval,
		Prices:       prices,
		Outcome:      policy,
		Logger:       logger,
	}, nil
}
