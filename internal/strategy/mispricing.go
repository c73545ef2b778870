package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"polytrader/internal/market"
	"polytrader/internal/order"
)

// MispricingKind is the registry name of the mispricing strategy.
const MispricingKind = "mispricing"

type MispricingConfig struct {
	ExtremeHigh   float64 // midpoint above which YES is confirmed
	ExtremeLow    float64 // midpoint below which held YES is unwound
	Confidence    float64 // our probability for a confirmed extreme
	MinVolume     float64
	JumpThreshold float64 // absolute midpoint move between ticks treated as an overreaction
	OrderSize     float64
	MarketIDs     []string
}

func DefaultMispricingConfig() MispricingConfig {
	return MispricingConfig{
		ExtremeHigh:   0.95,
		ExtremeLow:    0.05,
		Confidence:    0.97,
		MinVolume:     100,
		JumpThreshold: 0.10,
		OrderSize:     10,
	}
}

// Mispricing trades two patterns: markets sitting at an extreme with enough
// volume to trust it, and sudden midpoint jumps expected to revert.
type Mispricing struct {
	log  *slog.Logger
	cfg  MispricingConfig
	prev map[string]float64 // midpoint before the latest tick
	last map[string]float64
}

func NewMispricing(logger *slog.Logger) *Mispricing {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mispricing{
		log:  logger,
		cfg:  DefaultMispricingConfig(),
		prev: make(map[string]float64),
		last: make(map[string]float64),
	}
}

func (m *Mispricing) Name() string { return MispricingKind }

func (m *Mispricing) Initialize(params Params) error {
	cfg := DefaultMispricingConfig()
	var err error

	fields := []struct {
		key string
		dst *float64
	}{
		{"extreme_high", &cfg.ExtremeHigh},
		{"extreme_low", &cfg.ExtremeLow},
		{"confidence", &cfg.Confidence},
		{"min_volume", &cfg.MinVolume},
		{"jump_threshold", &cfg.JumpThreshold},
		{"order_size", &cfg.OrderSize},
	}
	for _, f := range fields {
		if *f.dst, err = params.Float(f.key, *f.dst); err != nil {
			return err
		}
	}
	if cfg.MarketIDs, _, err = params.Strings("market_ids"); err != nil {
		return err
	}

	switch {
	case !(0 < cfg.ExtremeLow && cfg.ExtremeLow < cfg.ExtremeHigh && cfg.ExtremeHigh < 1):
		return &ConfigError{Key: "extreme_high", Err: fmt.Errorf("need 0 < extreme_low < extreme_high < 1, got %v and %v", cfg.ExtremeLow, cfg.ExtremeHigh)}
	case !(cfg.Confidence > 0 && cfg.Confidence < 1):
		return &ConfigError{Key: "confidence", Err: fmt.Errorf("must be in (0, 1), got %v", cfg.Confidence)}
	case !(cfg.JumpThreshold > 0):
		return &ConfigError{Key: "jump_threshold", Err: fmt.Errorf("must be positive, got %v", cfg.JumpThreshold)}
	case !(cfg.OrderSize > 0):
		return &ConfigError{Key: "order_size", Err: fmt.Errorf("must be positive, got %v", cfg.OrderSize)}
	case cfg.MinVolume < 0:
		return &ConfigError{Key: "min_volume", Err: fmt.Errorf("must not be negative, got %v", cfg.MinVolume)}
	}

	m.cfg = cfg
	m.prev = make(map[string]float64)
	m.last = make(map[string]float64)
	m.log.Info("mispricing initialized", "extreme_high", cfg.ExtremeHigh, "extreme_low", cfg.ExtremeLow, "jump_threshold", cfg.JumpThreshold)
	return nil
}

func (m *Mispricing) OnTick(state market.MarketState) error {
	if last, ok := m.last[state.MarketID]; ok {
		m.prev[state.MarketID] = last
	}
	m.last[state.MarketID] = state.Midpoint
	return nil
}

func (m *Mispricing) ProposeOrders(c Context) ([]order.Order, error) {
	ids, present, err := c.Parameters.Strings("market_ids")
	if err != nil {
		return nil, err
	}
	if !present {
		ids = m.cfg.MarketIDs
	}
	if len(ids) == 0 {
		ids = c.Markets.IDs()
	}

	var orders []order.Order
	for _, id := range ids {
		mkt, ok := c.GetMarket(id)
		if !ok {
			continue
		}
		held := c.Positions.Size(id)
		o, ok := m.evaluateExtreme(mkt, held, c.Balance)
		if !ok {
			o, ok = m.evaluateReversion(mkt, held, c.Balance)
		}
		if ok {
			orders = append(orders, o)
		}
	}

	m.log.Info("mispricing evaluation complete", "markets", len(ids), "orders", len(orders))
	return orders, nil
}

// evaluateExtreme confirms a market trading near 1 by buying at the ask while
// our confidence still beats it, and unwinds held YES in a market near 0.
func (m *Mispricing) evaluateExtreme(mkt market.MarketState, held, balance float64) (order.Order, bool) {
	if mkt.Volume < m.cfg.MinVolume {
		return order.Order{}, false
	}
	switch {
	case mkt.Midpoint > m.cfg.ExtremeHigh:
		edge := m.cfg.Confidence - mkt.Ask
		if edge <= 0 {
			return order.Order{}, false
		}
		m.log.Debug("extreme probability confirmed", "market", mkt.MarketID, "midpoint", mkt.Midpoint, "edge", edge)
		return m.buy(mkt, mkt.Ask, balance)
	case mkt.Midpoint < m.cfg.ExtremeLow && held > 0:
		return m.sell(mkt, mkt.Bid, held)
	}
	return order.Order{}, false
}

// evaluateReversion fades a jump since the previous tick: buy the bid after a
// drop, sell held YES at the ask after a spike.
func (m *Mispricing) evaluateReversion(mkt market.MarketState, held, balance float64) (order.Order, bool) {
	prev, ok := m.prev[mkt.MarketID]
	if !ok {
		return order.Order{}, false
	}
	move := mkt.Midpoint - prev
	switch {
	case move <= -m.cfg.JumpThreshold:
		m.log.Debug("sudden drop, expecting reversion", "market", mkt.MarketID, "from", prev, "to", mkt.Midpoint)
		return m.buy(mkt, mkt.Bid, balance)
	case move >= m.cfg.JumpThreshold && held > 0:
		m.log.Debug("sudden spike, taking profit", "market", mkt.MarketID, "from", prev, "to", mkt.Midpoint)
		return m.sell(mkt, mkt.Ask, held)
	}
	return order.Order{}, false
}

func (m *Mispricing) buy(mkt market.MarketState, price, balance float64) (order.Order, bool) {
	cost := decimal.NewFromFloat(m.cfg.OrderSize).Mul(decimal.NewFromFloat(price))
	if math.IsNaN(balance) || decimal.NewFromFloat(balance).LessThan(cost) {
		return order.Order{}, false
	}
	o, err := order.Buy(mkt.MarketID, mkt.TokenID, m.cfg.OrderSize, order.PriceOf(roundPrice(price)))
	if err != nil {
		m.log.Warn("dropping malformed order", "market", mkt.MarketID, "error", err)
		return order.Order{}, false
	}
	return o, true
}

func (m *Mispricing) sell(mkt market.MarketState, price, held float64) (order.Order, bool) {
	o, err := order.New(mkt.MarketID, mkt.TokenID, order.SideSell, order.TypeLimit, math.Min(m.cfg.OrderSize, held), order.PriceOf(roundPrice(price)))
	if err != nil {
		m.log.Warn("dropping malformed order", "market", mkt.MarketID, "error", err)
		return order.Order{}, false
	}
	return o, true
}

// RiskCheck vetoes orders on thin markets and sells larger than the position.
func (m *Mispricing) RiskCheck(o order.Order, c Context) (bool, error) {
	mkt, ok := c.GetMarket(o.MarketID)
	if !ok {
		return false, fmt.Errorf("risk check: %w: %s", market.ErrDataUnavailable, o.MarketID)
	}
	if mkt.Volume < m.cfg.MinVolume {
		return false, nil
	}
	if o.Side == order.SideSell && o.Size > c.Positions.Size(o.MarketID) {
		return false, nil
	}
	return true, nil
}
