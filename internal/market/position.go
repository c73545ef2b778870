package market

import "sort"

// Position is the host's holding in one market. Size is signed; positive is long.
type Position struct {
	MarketID      string
	TokenID       string
	Size          float64
	AvgEntryPrice float64
	CurrentPrice  *float64
	RealizedPnL   float64
	UnrealizedPnL float64
}

// PositionBook is a read-only view of the host's positions for one cycle.
// The zero value is an empty book.
type PositionBook struct {
	byMarket map[string]Position
}

// NewPositionBook indexes positions by market id. Later entries for the same
// market replace earlier ones.
func NewPositionBook(positions ...Position) PositionBook {
	b := PositionBook{byMarket: make(map[string]Position, len(positions))}
	for _, p := range positions {
		b.byMarket[p.MarketID] = copyPosition(p)
	}
	return b
}

// Get returns the position for a market.
func (b PositionBook) Get(marketID string) (Position, bool) {
	p, ok := b.byMarket[marketID]
	if !ok {
		return Position{}, false
	}
	return copyPosition(p), true
}

// Size is the signed size held in a market, zero when flat or unknown.
func (b PositionBook) Size(marketID string) float64 {
	return b.byMarket[marketID].Size
}

// All returns a copy of every position ordered by market id.
func (b PositionBook) All() []Position {
	out := make([]Position, 0, len(b.byMarket))
	for _, p := range b.byMarket {
		out = append(out, copyPosition(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// Len is the number of markets with a position.
func (b PositionBook) Len() int {
	return len(b.byMarket)
}

// FindPosition returns the first position for marketID in a plain slice.
func FindPosition(positions []Position, marketID string) (Position, bool) {
	for _, p := range positions {
		if p.MarketID == marketID {
			return copyPosition(p), true
		}
	}
	return Position{}, false
}

func copyPosition(p Position) Position {
	if p.CurrentPrice != nil {
		cp := *p.CurrentPrice
		p.CurrentPrice = &cp
	}
	return p
}
