package strategy

import (
	"errors"
	"fmt"
	"time"

	"battle-arena/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPositionOpen = errors.New("strategy: position already open")
	ErrNoPosition   = errors.New("strategy: no open position")
	ErrMissingPrice = errors.New("strategy: missing price")
	ErrBadDecision  = errors.New("strategy: unsupported decision")
)

var (
	takeProfit   = decimal.NewFromFloat(0.05)
	stopLoss     = decimal.NewFromFloat(-0.03)
	maxExposure  = decimal.NewFromFloat(0.5)
	hundred      = decimal.NewFromInt(100)
	momentumBias = 0.5
)

// MomentumAgent trades at most one position at a time:
// - a frequency gate decides whether the round is considered at all
// - with no position, a positive momentum draw opens one
// - with a position, take-profit (+5%) or stop-loss (-3%) closes it
type MomentumAgent struct {
	participantID string
	cfg           model.StrategyConfig
	rnd           RandSource
	now           func() time.Time

	realized decimal.Decimal
	position *model.Position
	trades   []model.TradeEvent
}

// NewMomentumAgent clamps cfg before storing it.
func NewMomentumAgent(participantID string, cfg model.StrategyConfig, rnd RandSource) *MomentumAgent {
	return &MomentumAgent{
		participantID: participantID,
		cfg:           cfg.Clamped(),
		rnd:           rnd,
		now:           time.Now,
	}
}

// NewFactory returns a Factory building MomentumAgents with a fresh RandSource per participant.
func NewFactory(newRand func(participantID string) RandSource) Factory {
	return func(participantID string, cfg model.StrategyConfig) Strategy {
		return NewMomentumAgent(participantID, cfg, newRand(participantID))
	}
}

func (a *MomentumAgent) Name() string { return "momentum" }

// Config returns the effective (clamped) configuration.
func (a *MomentumAgent) Config() model.StrategyConfig { return a.cfg }

func (a *MomentumAgent) Decide(market model.MarketSnapshot) (model.Decision, error) {
	if a.rnd.Float64() > float64(a.cfg.TradeFrequency)/100 {
		return model.DecisionHold, nil
	}

	if a.position == nil {
		momentum := a.rnd.Float64() - momentumBias
		if momentum > 0 {
			return model.DecisionBuy, nil
		}
		return model.DecisionHold, nil
	}

	change, err := a.priceChange(market)
	if err != nil {
		return model.DecisionHold, err
	}
	if change.GreaterThan(takeProfit) || change.LessThan(stopLoss) {
		return model.DecisionSell, nil
	}
	return model.DecisionHold, nil
}

// Apply executes a BUY or SELL against market. HOLD is a no-op returning a nil event.
func (a *MomentumAgent) Apply(decision model.Decision, market model.MarketSnapshot) (*model.TradeEvent, error) {
	switch decision {
	case model.DecisionHold:
		return nil, nil
	case model.DecisionBuy:
		return a.buy(market)
	case model.DecisionSell:
		return a.sell(market)
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadDecision, decision)
	}
}

func (a *MomentumAgent) buy(market model.MarketSnapshot) (*model.TradeEvent, error) {
	if a.position != nil {
		return nil, ErrPositionOpen
	}
	asset := a.selectAsset()
	price, ok := market.Price(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingPrice, asset)
	}
	size := decimal.NewFromInt(int64(a.cfg.RiskLevel)).Div(hundred).Mul(maxExposure)
	at := a.tradeTime(market)

	a.position = &model.Position{
		Asset:        asset,
		EntryPrice:   price,
		SizeFraction: size,
		OpenedAt:     at,
	}
	ev := model.TradeEvent{
		ID:     uuid.NewString(),
		Action: model.DecisionBuy,
		Asset:  asset,
		Price:  price,
		Size:   size,
		Time:   at,
	}
	a.trades = append(a.trades, ev)
	return &ev, nil
}

func (a *MomentumAgent) sell(market model.MarketSnapshot) (*model.TradeEvent, error) {
	if a.position == nil {
		return nil, ErrNoPosition
	}
	change, err := a.priceChange(market)
	if err != nil {
		return nil, err
	}
	price, _ := market.Price(a.position.Asset)
	profitPct := change.Mul(hundred)
	contribution := profitPct.Mul(a.position.SizeFraction)

	ev := model.TradeEvent{
		ID:            uuid.NewString(),
		Action:        model.DecisionSell,
		Asset:         a.position.Asset,
		Price:         price,
		ProfitPercent: profitPct,
		RealizedPnL:   contribution,
		Time:          a.tradeTime(market),
	}
	a.realized = a.realized.Add(contribution)
	a.position = nil
	a.trades = append(a.trades, ev)
	return &ev, nil
}

// PnL is realized plus the open position marked to market. A missing quote marks the position flat.
func (a *MomentumAgent) PnL(market model.MarketSnapshot) decimal.Decimal {
	total := a.realized
	if a.position == nil {
		return total
	}
	change, err := a.priceChange(market)
	if err != nil {
		return total
	}
	return total.Add(change.Mul(hundred).Mul(a.position.SizeFraction))
}

func (a *MomentumAgent) View() View {
	v := View{RealizedPnL: a.realized}
	if a.position != nil {
		p := *a.position
		v.Position = &p
	}
	if len(a.trades) > 0 {
		v.Trades = make([]model.TradeEvent, len(a.trades))
		copy(v.Trades, a.trades)
	}
	return v
}

func (a *MomentumAgent) priceChange(market model.MarketSnapshot) (decimal.Decimal, error) {
	current, ok := market.Price(a.position.Asset)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingPrice, a.position.Asset)
	}
	return current.Sub(a.position.EntryPrice).Div(a.position.EntryPrice), nil
}

// selectAsset draws uniformly from the focus candidates; a single candidate consumes no draw.
func (a *MomentumAgent) selectAsset() string {
	candidates := a.cfg.AssetFocus.Candidates()
	switch len(candidates) {
	case 0:
		return model.SymbolETH
	case 1:
		return candidates[0]
	}
	idx := int(a.rnd.Float64() * float64(len(candidates)))
	if idx >= len(candidates) {
		idx = len(candidates) - 1
	}
	return candidates[idx]
}

func (a *MomentumAgent) tradeTime(market model.MarketSnapshot) time.Time {
	if !market.Timestamp.IsZero() {
		return market.Timestamp
	}
	return a.now()
}
