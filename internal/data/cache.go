package data

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"battle-arena/internal/metrics"
	"battle-arena/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL      = 60 * time.Second
	DefaultFetchTimeout  = 8 * time.Second
	fallbackVolatility   = 0.5
	minRefreshVolatility = 0.3
	volatilitySpread     = 0.5
)

var (
	// ErrUnknownSymbol is returned for symbols outside the universe.
	ErrUnknownSymbol = errors.New("unknown symbol")

	errIncompleteQuote = errors.New("upstream quote is missing a universe symbol")
)

// Provider is an upstream price feed.
type Provider interface {
	FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// HistoryProvider is implemented by feeds that can serve past prices.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, days int) ([]model.PricePoint, error)
}

type Options struct {
	TTL     time.Duration
	Timeout time.Duration
	Now     func() time.Time
	// Rand returns a value in [0,1); it drives the volatility hint.
	Rand   func() float64
	Logger *zap.Logger
}

// PriceSource caches one market snapshot for the whole process.
//
// Fetch never returns an error: an upstream failure yields the last snapshot,
// however old, or the built-in fallback when nothing has been fetched yet.
// Concurrent refreshes collapse into a single upstream call.
type PriceSource struct {
	provider Provider
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	rand     func() float64
	log      *zap.Logger

	group singleflight.Group

	mu         sync.RWMutex
	cached     *model.MarketSnapshot
	validUntil time.Time
}

func NewPriceSource(provider Provider, opts Options) *PriceSource {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &PriceSource{
		provider: provider,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		now:      opts.Now,
		rand:     opts.Rand,
		log:      opts.Logger.Named("prices"),
	}
}

// Fetch returns the cached snapshot while it is valid, otherwise refreshes it.
// A caller whose ctx ends while a refresh is in flight gets the last known snapshot.
func (s *PriceSource) Fetch(ctx context.Context) model.MarketSnapshot {
	if snap, ok := s.fresh(); ok {
		metrics.PriceCacheHits.Inc()
		return snap
	}

	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		return s.refresh(), nil
	})
	select {
	case res := <-ch:
		return res.Val.(model.MarketSnapshot)
	case <-ctx.Done():
		return s.Last()
	}
}

// Last returns the most recent snapshot without touching upstream.
func (s *PriceSource) Last() model.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached != nil {
		return *s.cached
	}
	return Fallback(s.now())
}

// History returns past prices for symbol; feeds without history yield an empty series.
func (s *PriceSource) History(ctx context.Context, symbol string, days int) ([]model.PricePoint, error) {
	if !isUniverse(symbol) {
		return nil, fmt.Errorf("%w %q", ErrUnknownSymbol, symbol)
	}
	hp, ok := s.provider.(HistoryProvider)
	if !ok {
		return []model.PricePoint{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	points, err := hp.History(ctx, symbol, days)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []model.PricePoint{}
	}
	return points, nil
}

func (s *PriceSource) fresh() (model.MarketSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil || !s.now().Before(s.validUntil) {
		return model.MarketSnapshot{}, false
	}
	return *s.cached, true
}

func (s *PriceSource) refresh() model.MarketSnapshot {
	// Another flight may have completed between the caller's check and this one starting.
	if snap, ok := s.fresh(); ok {
		return snap
	}

	prices, err := s.fetchUpstream()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.cached != nil {
			metrics.PriceRefreshes.WithLabelValues("stale").Inc()
			s.log.Warn("upstream refresh failed, serving stale snapshot",
				zap.Time("captured_at", s.cached.Timestamp), zap.Error(err))
			return *s.cached
		}
		metrics.PriceRefreshes.WithLabelValues("fallback").Inc()
		s.log.Warn("upstream refresh failed, serving fallback prices", zap.Error(err))
		fb := Fallback(now)
		// validUntil stays in the past so the next call tries upstream again.
		s.cached = &fb
		return fb
	}

	snap := model.MarketSnapshot{
		Timestamp:      now,
		Prices:         prices,
		VolatilityHint: minRefreshVolatility + s.rand()*volatilitySpread,
	}
	s.cached = &snap
	s.validUntil = now.Add(s.ttl)
	metrics.PriceRefreshes.WithLabelValues("ok").Inc()
	s.log.Debug("prices refreshed", zap.Time("valid_until", s.validUntil))
	return snap
}

func (s *PriceSource) fetchUpstream() (map[string]decimal.Decimal, error) {
	if s.provider == nil {
		return nil, errors.New("no price provider configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	prices, err := s.provider.FetchPrices(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(model.Universe))
	for _, sym := range model.Universe {
		p, ok := prices[sym]
		if !ok || !p.IsPositive() {
			return nil, fmt.Errorf("%w: %s", errIncompleteQuote, sym)
		}
		out[sym] = p
	}
	return out, nil
}

// Fallback is the snapshot served when upstream has never answered.
func Fallback(now time.Time) model.MarketSnapshot {
	return model.MarketSnapshot{
		Timestamp: now,
		Prices: map[string]decimal.Decimal{
			model.SymbolBTC:  decimal.NewFromInt(95000),
			model.SymbolETH:  decimal.NewFromInt(3500),
			model.SymbolDOGE: decimal.RequireFromString("0.35"),
			model.SymbolPEPE: decimal.RequireFromString("0.000015"),
		},
		VolatilityHint: fallbackVolatility,
	}
}

func isUniverse(symbol string) bool {
	for _, s := range model.Universe {
		if s == symbol {
			return true
		}
	}
	return false
}
