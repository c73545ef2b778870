package market

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDataUnavailable is returned when a market id is absent from the current snapshot.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInvalidMarket is returned when a MarketState violates bid <= midpoint <= ask.
	ErrInvalidMarket = errors.New("invalid market state")
)

// MarketState is the per-tick view of a single market. The host builds a fresh
// value every tick; nothing mutates it afterwards.
type MarketState struct {
	MarketID  string
	TokenID   string
	Bid       float64
	Ask       float64
	Midpoint  float64
	Spread    float64 // minimum quote width; may be supplied wider than Ask-Bid
	Volume    float64
	LastPrice *float64
}

// NewMarketState derives midpoint and spread from the quotes.
func NewMarketState(marketID, tokenID string, bid, ask, volume float64) (MarketState, error) {
	s := MarketState{
		MarketID: marketID,
		TokenID:  tokenID,
		Bid:      bid,
		Ask:      ask,
		Midpoint: (bid + ask) / 2,
		Spread:   ask - bid,
		Volume:   volume,
	}
	if err := s.Validate(); err != nil {
		return MarketState{}, err
	}
	return s, nil
}

// WithLastPrice returns a copy carrying the last traded price.
func (s MarketState) WithLastPrice(p float64) MarketState {
	s.LastPrice = &p
	return s
}

// Validate checks the quote ordering invariant.
func (s MarketState) Validate() error {
	if s.MarketID == "" {
		return fmt.Errorf("%w: empty market id", ErrInvalidMarket)
	}
	for _, v := range []float64{s.Bid, s.Ask, s.Midpoint, s.Spread} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has non-finite quote", ErrInvalidMarket, s.MarketID)
		}
	}
	if s.Bid > s.Midpoint || s.Midpoint > s.Ask {
		return fmt.Errorf("%w: %s bid=%v midpoint=%v ask=%v", ErrInvalidMarket, s.MarketID, s.Bid, s.Midpoint, s.Ask)
	}
	if s.Spread < 0 {
		return fmt.Errorf("%w: %s negative spread %v", ErrInvalidMarket, s.MarketID, s.Spread)
	}
	return nil
}

// EffectiveSpread is the wider of the supplied spread and Ask-Bid.
func (s MarketState) EffectiveSpread() float64 {
	if quoted := s.Ask - s.Bid; quoted > s.Spread {
		return quoted
	}
	return s.Spread
}
