package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"polytrader/internal/order"
	"polytrader/internal/strategy"
)

// Limits are the hard bounds the gate enforces.
type Limits struct {
	MaxPosition          float64            // global per-market cap
	MaxPositionPerMarket map[string]float64 // overrides MaxPosition for listed markets
	ShortTolerance       float64            // how far below zero a SELL may take a position
	PriceFloor           float64            // exclusive
	PriceCeiling         float64            // exclusive
}

// DefaultLimits bound a normalized probability market.
func DefaultLimits() Limits {
	return Limits{
		MaxPosition:  100,
		PriceFloor:   0.01,
		PriceCeiling: 0.99,
	}
}

// Validate rejects limits the gate cannot enforce meaningfully.
func (l Limits) Validate() error {
	if !(l.MaxPosition > 0) || math.IsInf(l.MaxPosition, 0) {
		return fmt.Errorf("max position must be positive, got %v", l.MaxPosition)
	}
	for id, bound := range l.MaxPositionPerMarket {
		if !(bound > 0) || math.IsInf(bound, 0) {
			return fmt.Errorf("max position for %s must be positive, got %v", id, bound)
		}
	}
	if !(l.ShortTolerance >= 0) || math.IsInf(l.ShortTolerance, 0) {
		return fmt.Errorf("short tolerance must not be negative, got %v", l.ShortTolerance)
	}
	if !finite(l.PriceFloor) || !finite(l.PriceCeiling) || !(l.PriceFloor < l.PriceCeiling) {
		return fmt.Errorf("price floor %v must be below ceiling %v", l.PriceFloor, l.PriceCeiling)
	}
	return nil
}

// MaxPositionFor returns the position cap for a market.
func (l Limits) MaxPositionFor(marketID string) float64 {
	if bound, ok := l.MaxPositionPerMarket[marketID]; ok {
		return bound
	}
	return l.MaxPosition
}

// Reason explains a rejection.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInvalidOrder
	ReasonPositionLimit
	ReasonMissingPrice
	ReasonPriceRange
	ReasonInsufficientBalance
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInvalidOrder:
		return "invalid_order"
	case ReasonPositionLimit:
		return "position_limit"
	case ReasonMissingPrice:
		return "missing_price"
	case ReasonPriceRange:
		return "price_out_of_range"
	case ReasonInsufficientBalance:
		return "insufficient_balance"
	default:
		return "unknown"
	}
}

// Decision is the gate's verdict on one order.
type Decision struct {
	Accepted bool
	Reason   Reason
	Detail   string
}

func accept() Decision {
	return Decision{Accepted: true, Reason: ReasonNone}
}

func reject(reason Reason, format string, args ...any) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Gate is the final authorization step for every candidate order. It holds
// no mutable state, so one Gate may serve any number of runtimes at once.
type Gate struct {
	limits Limits
}

func NewGate(limits Limits) (*Gate, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk limits: %w", err)
	}
	return &Gate{limits: limits}, nil
}

// Limits returns the limits the gate enforces.
func (g *Gate) Limits() Limits {
	return g.limits
}

// Evaluate decides whether o may be queued given the cycle's positions,
// balance and market data in c. Checks run in order and the first failure
// wins: position limit, price sanity, solvency. Nothing in c is modified.
func (g *Gate) Evaluate(o order.Order, c strategy.Context) Decision {
	if !(o.Size > 0) || math.IsInf(o.Size, 0) {
		return reject(ReasonInvalidOrder, "size must be positive and finite, got %v", o.Size)
	}
	held := c.Positions.Size(o.MarketID)
	if !finite(held) {
		return reject(ReasonPositionLimit, "position in %s is not a number: %v", o.MarketID, held)
	}
	size := decimal.NewFromFloat(o.Size)
	current := decimal.NewFromFloat(held)

	switch o.Side {
	case order.SideBuy:
		limit := decimal.NewFromFloat(g.limits.MaxPositionFor(o.MarketID))
		if next := current.Add(size); next.GreaterThan(limit) {
			return reject(ReasonPositionLimit, "position %s + %s exceeds max %s", current, size, limit)
		}
	case order.SideSell:
		available := current.Add(decimal.NewFromFloat(g.limits.ShortTolerance))
		if size.GreaterThan(available) {
			return reject(ReasonPositionLimit, "sell %s exceeds position %s", size, current)
		}
	default:
		return reject(ReasonInvalidOrder, "unknown side %s", o.Side)
	}

	var fillPrice decimal.Decimal
	switch {
	case o.Type.Priced():
		price, ok := o.HasPrice()
		if !ok {
			return reject(ReasonMissingPrice, "%s order without price", o.Type)
		}
		if !(g.limits.PriceFloor < price && price < g.limits.PriceCeiling) {
			return reject(ReasonPriceRange, "price %v outside (%v, %v)", price, g.limits.PriceFloor, g.limits.PriceCeiling)
		}
		fillPrice = decimal.NewFromFloat(price)
	case o.Type == order.TypeMarket:
		if price, ok := o.HasPrice(); ok && !(g.limits.PriceFloor < price && price < g.limits.PriceCeiling) {
			return reject(ReasonPriceRange, "protective price %v outside (%v, %v)", price, g.limits.PriceFloor, g.limits.PriceCeiling)
		}
		fillPrice = g.worstMarketFill(o, c)
	default:
		return reject(ReasonInvalidOrder, "unknown type %s", o.Type)
	}

	if o.Side == order.SideBuy {
		if !finite(c.Balance) {
			return reject(ReasonInsufficientBalance, "balance is not a number: %v", c.Balance)
		}
		cost := size.Mul(fillPrice)
		balance := decimal.NewFromFloat(c.Balance)
		if balance.LessThan(cost) {
			return reject(ReasonInsufficientBalance, "cost %s exceeds balance %s", cost, balance)
		}
	}

	return accept()
}

// worstMarketFill estimates the highest price a MARKET order could fill at:
// the worst of the price ceiling, the current ask and any price on the order.
// Sinks do not cap MARKET fills, so an order price never lowers the estimate.
func (g *Gate) worstMarketFill(o order.Order, c strategy.Context) decimal.Decimal {
	worst := decimal.NewFromFloat(g.limits.PriceCeiling)
	if m, ok := c.GetMarket(o.MarketID); ok && finite(m.Ask) {
		if ask := decimal.NewFromFloat(m.Ask); ask.GreaterThan(worst) {
			worst = ask
		}
	}
	if price, ok := o.HasPrice(); ok {
		if p := decimal.NewFromFloat(price); p.GreaterThan(worst) {
			worst = p
		}
	}
	return worst
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
