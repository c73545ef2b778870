package strategy

import (
	"fmt"

	"polytrader/internal/market"
	"polytrader/internal/order"
)

// Strategy is the contract every plugin implements. The runtime calls these
// methods strictly in sequence for one instance; an implementation never has
// to guard its own state against concurrent lifecycle calls.
type Strategy interface {
	Name() string

	// Initialize applies configuration. Calling it again with the same params
	// must leave the strategy in the same state, not an accumulated one.
	Initialize(params Params) error

	// OnTick observes one market. It may only update state the strategy owns.
	OnTick(state market.MarketState) error

	// ProposeOrders returns this cycle's candidate orders, possibly none.
	ProposeOrders(c Context) ([]order.Order, error)

	// RiskCheck is the strategy's own opinion of a candidate. It can veto an
	// order but never override the runtime's risk gate.
	RiskCheck(o order.Order, c Context) (bool, error)
}

// BatchTicker is implemented by strategies that prefer to observe a whole
// snapshot in one call. Semantics must match one OnTick per market in id order.
type BatchTicker interface {
	OnTicks(states []market.MarketState) error
}

// Mode is the trading mode of a cycle.
type Mode int

const (
	ModeUnknown Mode = iota
	ModePaper
	ModeLive
	ModeShadow
)

func (m Mode) String() string {
	switch m {
	case ModePaper:
		return "PAPER"
	case ModeLive:
		return "LIVE"
	case ModeShadow:
		return "SHADOW"
	default:
		return "UNKNOWN"
	}
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "PAPER", "paper":
		return ModePaper, nil
	case "LIVE", "live":
		return ModeLive, nil
	case "SHADOW", "shadow":
		return ModeShadow, nil
	default:
		return ModeUnknown, fmt.Errorf("unknown trading mode %q", s)
	}
}

// Context is the read-only view handed to ProposeOrders and RiskCheck.
// The host builds one per cycle; strategies receive it by value.
type Context struct {
	Mode       Mode
	Positions  market.PositionBook
	Balance    float64
	Markets    *market.Snapshot
	Parameters Params
}

// GetMarket returns the state of a market in this cycle's snapshot.
func (c Context) GetMarket(marketID string) (market.MarketState, bool) {
	return c.Markets.Get(marketID)
}

// GetPosition returns the position held in a market.
func (c Context) GetPosition(marketID string) (market.Position, bool) {
	return c.Positions.Get(marketID)
}

// Orderbook returns the approximate book for a market; see market.Snapshot.Orderbook.
func (c Context) Orderbook(marketID string) market.Book {
	return c.Markets.Orderbook(marketID)
}
