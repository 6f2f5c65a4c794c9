package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"battle-arena/internal/model"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	ProviderCoinGecko = "coingecko"
	ProviderFile      = "file"

	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Prices     PricesConfig     `yaml:"prices"`
	Battle     BattleConfig     `yaml:"battle"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Logging    LoggingConfig    `yaml:"logging"`
	Simulation SimulationConfig `yaml:"simulation"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	// Env is "development" or "production"; production switches gin to release mode.
	Env string `yaml:"env"`
}

type PricesConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	FixtureFile string        `yaml:"fixture_file"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Timeout     time.Duration `yaml:"timeout"`
}

type BattleConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	DefaultDuration time.Duration `yaml:"default_duration"`
	Retention       time.Duration `yaml:"retention"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	OutcomePolicy   string        `yaml:"outcome_policy"`
	// DrawMargin is in PnL points; only the margin policy reads it.
	DrawMargin float64 `yaml:"draw_margin"`
}

type LedgerConfig struct {
	Driver      string         `yaml:"driver"`
	Postgres    PostgresConfig `yaml:"postgres"`
	Timeout     time.Duration  `yaml:"timeout"`
	Retries     int            `yaml:"retries"`
	Backoff     time.Duration  `yaml:"backoff"`
	EventBuffer int            `yaml:"event_buffer"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

type BroadcastConfig struct {
	WebSocket bool       `yaml:"websocket"`
	NATS      NATSConfig `yaml:"nats"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// SimulationConfig drives the offline simulate command.
// If both EntrantsFile and Entrants are provided, Entrants with the same id override the file.
type SimulationConfig struct {
	EntrantsFile string        `yaml:"entrants_file"`
	Entrants     []Entrant     `yaml:"entrants"`
	Duration     time.Duration `yaml:"duration"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Seed         int64         `yaml:"seed"`
	WalkScale    float64       `yaml:"walk_scale"`
	Output       string        `yaml:"output"`
}

type Entrant struct {
	ID     string               `yaml:"id"`
	Config model.StrategyConfig `yaml:"config"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Env: "development"},
		Prices: PricesConfig{
			Provider: ProviderCoinGecko,
			CacheTTL: 60 * time.Second,
			Timeout:  8 * time.Second,
		},
		Battle: BattleConfig{
			TickInterval:    30 * time.Second,
			DefaultDuration: 30 * time.Minute,
			Retention:       time.Hour,
			JanitorInterval: 5 * time.Minute,
			OutcomePolicy:   "top",
			DrawMargin:      10,
		},
		Ledger: LedgerConfig{
			Driver:      DriverMemory,
			Timeout:     10 * time.Second,
			Retries:     2,
			Backoff:     500 * time.Millisecond,
			EventBuffer: 256,
		},
		Broadcast: BroadcastConfig{WebSocket: true},
		Logging:   LoggingConfig{Level: "info"},
		Simulation: SimulationConfig{
			Duration:     30 * time.Minute,
			TickInterval: 30 * time.Second,
			WalkScale:    0.02,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates.
// An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c.Prices.FixtureFile = resolveRelative(path, c.Prices.FixtureFile)
	// If entrants_file is set, load it and merge in any explicit entrants from the config.
	if c.Simulation.EntrantsFile != "" {
		loaded, err := loadEntrantsFile(resolveRelative(path, c.Simulation.EntrantsFile))
		if err != nil {
			return nil, err
		}
		c.Simulation.Entrants = MergeEntrants(loaded, c.Simulation.Entrants)
	}
	return c, nil
}

// ApplyEnv overlays the supported environment variables.
// DATABASE_URL also selects the postgres ledger.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("API_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := getenv("API_ENV"); v != "" {
		c.Server.Env = v
	}
	if v := getenv("COINGECKO_API_KEY"); v != "" {
		c.Prices.APIKey = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Ledger.Driver = DriverPostgres
		c.Ledger.Postgres.URL = v
	}
	if v := getenv("NATS_URL"); v != "" {
		c.Broadcast.NATS.URL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}

	switch c.Prices.Provider {
	case ProviderCoinGecko:
	case ProviderFile:
		if c.Prices.FixtureFile == "" {
			return errors.New("prices.fixture_file is required for the file provider")
		}
	default:
		return fmt.Errorf("prices.provider must be %q or %q, got %q", ProviderCoinGecko, ProviderFile, c.Prices.Provider)
	}
	if c.Prices.CacheTTL <= 0 || c.Prices.Timeout <= 0 {
		return errors.New("prices.cache_ttl and prices.timeout must be positive")
	}

	if c.Battle.TickInterval <= 0 || c.Battle.DefaultDuration <= 0 {
		return errors.New("battle.tick_interval and battle.default_duration must be positive")
	}
	if c.Battle.Retention <= 0 || c.Battle.JanitorInterval <= 0 {
		return errors.New("battle.retention and battle.janitor_interval must be positive")
	}
	switch strings.ToLower(c.Battle.OutcomePolicy) {
	case "top", "margin":
	default:
		return fmt.Errorf("battle.outcome_policy must be top or margin, got %q", c.Battle.OutcomePolicy)
	}
	if c.Battle.DrawMargin < 0 {
		return errors.New("battle.draw_margin must not be negative")
	}

	switch c.Ledger.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Ledger.Postgres.URL == "" && c.Ledger.Postgres.Database == "" {
			return errors.New("ledger.postgres needs url or database")
		}
	default:
		return fmt.Errorf("ledger.driver must be %q or %q, got %q", DriverMemory, DriverPostgres, c.Ledger.Driver)
	}
	if c.Ledger.Retries < 0 {
		return errors.New("ledger.retries must not be negative")
	}
	if c.Ledger.Timeout <= 0 {
		return errors.New("ledger.timeout must be positive")
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	for _, e := range c.Simulation.Entrants {
		if e.ID == "" {
			return errors.New("simulation entrant id is required")
		}
		if err := e.Config.Validate(); err != nil {
			return fmt.Errorf("simulation entrant %s: %w", e.ID, err)
		}
	}
	return nil
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

// NewLogger builds the process logger.
func (l LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

type entrantsFileWrapper struct {
	Entrants []Entrant `yaml:"entrants"`
}

func loadEntrantsFile(path string) ([]Entrant, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w entrantsFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return w.Entrants, nil
}

// MergeEntrants overlays override onto base by id; new ids are appended in order.
func MergeEntrants(base, override []Entrant) []Entrant {
	out := append([]Entrant(nil), base...)
	idx := make(map[string]int, len(out))
	for i, e := range out {
		idx[e.ID] = i
	}
	for _, e := range override {
		if i, ok := idx[e.ID]; ok {
			out[i] = e
			continue
		}
		idx[e.ID] = len(out)
		out = append(out, e)
	}
	return out
}

// resolveRelative prefers interpreting rel relative to the config file directory,
// but falls back to the provided path (relative to cwd) if that doesn't exist.
func resolveRelative(configPath, rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	cand := filepath.Join(filepath.Dir(configPath), rel)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return rel
}
