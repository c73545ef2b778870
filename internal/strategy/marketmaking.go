package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"polytrader/internal/market"
	"polytrader/internal/order"
)

// MarketMakerKind is the registry name of the market maker.
const MarketMakerKind = "marketmaker"

// MarketMakerConfig is built once per Initialize and never mutated afterwards.
type MarketMakerConfig struct {
	SpreadPercent       float64  // quote distance from midpoint, as a fraction of it
	OrderSize           float64  // size per order
	MaxPosition         float64  // per-market position cap
	RefreshThreshold    float64  // relative midpoint move that is worth logging
	MarketIDs           []string // empty means every market in the snapshot
	WidenToMarketSpread bool     // widen quotes to the market spread when ours is narrower
}

func DefaultMarketMakerConfig() MarketMakerConfig {
	return MarketMakerConfig{
		SpreadPercent:    0.02,
		OrderSize:        10,
		MaxPosition:      100,
		RefreshThreshold: 0.01,
	}
}

// MarketMaker provides liquidity by quoting a bid below and an ask above the
// midpoint of each target market.
type MarketMaker struct {
	log        *slog.Logger
	cfg        MarketMakerConfig
	lastPrices map[string]float64 // market id -> last seen midpoint
}

func NewMarketMaker(logger *slog.Logger) *MarketMaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketMaker{
		log:        logger,
		cfg:        DefaultMarketMakerConfig(),
		lastPrices: make(map[string]float64),
	}
}

func (mm *MarketMaker) Name() string { return MarketMakerKind }

// Config returns the active configuration.
func (mm *MarketMaker) Config() MarketMakerConfig {
	cfg := mm.cfg
	cfg.MarketIDs = append([]string(nil), mm.cfg.MarketIDs...)
	return cfg
}

func (mm *MarketMaker) Initialize(params Params) error {
	cfg, err := parseMarketMakerConfig(params)
	if err != nil {
		return err
	}
	mm.cfg = cfg
	mm.lastPrices = make(map[string]float64)

	mm.log.Info("market maker initialized",
		"spread_percent", cfg.SpreadPercent,
		"order_size", cfg.OrderSize,
		"max_position", cfg.MaxPosition,
		"markets", len(cfg.MarketIDs),
	)
	return nil
}

func parseMarketMakerConfig(params Params) (MarketMakerConfig, error) {
	cfg := DefaultMarketMakerConfig()
	var err error

	if cfg.SpreadPercent, err = params.Float("spread_percent", cfg.SpreadPercent); err != nil {
		return cfg, err
	}
	if cfg.OrderSize, err = params.Float("order_size", cfg.OrderSize); err != nil {
		return cfg, err
	}
	if cfg.MaxPosition, err = params.Float("max_position", cfg.MaxPosition); err != nil {
		return cfg, err
	}
	if cfg.RefreshThreshold, err = params.Float("refresh_threshold", cfg.RefreshThreshold); err != nil {
		return cfg, err
	}
	if cfg.WidenToMarketSpread, err = params.Bool("widen_to_market_spread", false); err != nil {
		return cfg, err
	}
	ids, _, err := params.Strings("market_ids")
	if err != nil {
		return cfg, err
	}
	cfg.MarketIDs = ids

	switch {
	case cfg.SpreadPercent < 0 || cfg.SpreadPercent >= 1:
		return cfg, &ConfigError{Key: "spread_percent", Err: fmt.Errorf("must be in [0, 1), got %v", cfg.SpreadPercent)}
	case !(cfg.OrderSize > 0):
		return cfg, &ConfigError{Key: "order_size", Err: fmt.Errorf("must be positive, got %v", cfg.OrderSize)}
	case !(cfg.MaxPosition > 0):
		return cfg, &ConfigError{Key: "max_position", Err: fmt.Errorf("must be positive, got %v", cfg.MaxPosition)}
	case cfg.RefreshThreshold < 0:
		return cfg, &ConfigError{Key: "refresh_threshold", Err: fmt.Errorf("must not be negative, got %v", cfg.RefreshThreshold)}
	}
	return cfg, nil
}

// OnTick records the midpoint and logs when it moved past the refresh threshold.
func (mm *MarketMaker) OnTick(state market.MarketState) error {
	last, seen := mm.lastPrices[state.MarketID]
	if seen && last != 0 {
		change := math.Abs(state.Midpoint-last) / last
		if change > mm.cfg.RefreshThreshold {
			mm.log.Info("price moved, orders may need refresh",
				"market", state.MarketID,
				"change_pct", change*100,
			)
		}
	}
	mm.lastPrices[state.MarketID] = state.Midpoint
	return nil
}

// LastPrice returns the last midpoint seen for a market.
func (mm *MarketMaker) LastPrice(marketID string) (float64, bool) {
	p, ok := mm.lastPrices[marketID]
	return p, ok
}

func (mm *MarketMaker) ProposeOrders(c Context) ([]order.Order, error) {
	targets, err := mm.targets(c)
	if err != nil {
		return nil, err
	}

	var orders []order.Order
	for _, id := range targets {
		m, ok := c.GetMarket(id)
		if !ok {
			mm.log.Debug("market not in snapshot, skipping", "market", id)
			continue
		}
		orders = append(orders, mm.quote(m, c)...)
	}

	mm.log.Info("proposing orders", "count", len(orders))
	return orders, nil
}

func (mm *MarketMaker) targets(c Context) ([]string, error) {
	ids, present, err := c.Parameters.Strings("market_ids")
	if err != nil {
		return nil, err
	}
	if present {
		return ids, nil
	}
	if len(mm.cfg.MarketIDs) > 0 {
		return mm.cfg.MarketIDs, nil
	}
	return c.Markets.IDs(), nil
}

func (mm *MarketMaker) quote(m market.MarketState, c Context) []order.Order {
	current := c.Positions.Size(m.MarketID)

	buyPrice := m.Midpoint * (1 - mm.cfg.SpreadPercent)
	sellPrice := m.Midpoint * (1 + mm.cfg.SpreadPercent)

	if spread := m.EffectiveSpread(); mm.cfg.WidenToMarketSpread && sellPrice-buyPrice < spread {
		buyPrice = m.Midpoint - spread/2
		sellPrice = m.Midpoint + spread/2
	}
	buyPrice = roundPrice(buyPrice)
	sellPrice = roundPrice(sellPrice)

	var orders []order.Order

	if current < mm.cfg.MaxPosition {
		buySize := math.Min(mm.cfg.OrderSize, mm.cfg.MaxPosition-current)
		cost := decimal.NewFromFloat(buySize).Mul(decimal.NewFromFloat(buyPrice))
		if buySize > 0 && decimal.NewFromFloat(c.Balance).GreaterThanOrEqual(cost) {
			if o, err := order.Buy(m.MarketID, m.TokenID, buySize, order.PriceOf(buyPrice)); err == nil {
				orders = append(orders, o)
			} else {
				mm.log.Warn("dropping malformed bid", "market", m.MarketID, "error", err)
			}
		}
	}

	if current > 0 {
		sellSize := math.Min(mm.cfg.OrderSize, current)
		if o, err := order.New(m.MarketID, m.TokenID, order.SideSell, order.TypeLimit, sellSize, order.PriceOf(sellPrice)); err == nil {
			orders = append(orders, o)
		} else {
			mm.log.Warn("dropping malformed ask", "market", m.MarketID, "error", err)
		}
	}

	return orders
}

// RiskCheck mirrors the market maker's own limits. The runtime's gate still
// has the final word.
func (mm *MarketMaker) RiskCheck(o order.Order, c Context) (bool, error) {
	current := c.Positions.Size(o.MarketID)

	switch o.Side {
	case order.SideBuy:
		if current+o.Size > mm.cfg.MaxPosition {
			mm.log.Info("risk check failed: would exceed max position", "market", o.MarketID, "max_position", mm.cfg.MaxPosition)
			return false, nil
		}
	case order.SideSell:
		if o.Size > current {
			mm.log.Info("risk check failed: sell size exceeds position", "market", o.MarketID, "size", o.Size, "position", current)
			return false, nil
		}
	default:
		return false, fmt.Errorf("unknown order side %s", o.Side)
	}

	if price, ok := o.HasPrice(); ok && (price < 0.01 || price > 0.99) {
		mm.log.Info("risk check failed: price out of range", "market", o.MarketID, "price", price)
		return false, nil
	}
	return true, nil
}

func roundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(4).InexactFloat64()
}
