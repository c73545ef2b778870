package market

import (
	"fmt"
	"sort"
	"time"
)

// SyntheticDepth is the size reported for each level of a derived orderbook.
const SyntheticDepth = 100

// Snapshot is an immutable set of market states for one tick. It is safe to
// share between concurrently running strategies without locking.
type Snapshot struct {
	states  map[string]MarketState
	ids     []string
	takenAt time.Time
}

// NewSnapshot validates every state and indexes them by market id. A duplicate
// id or an invalid state fails the whole snapshot.
func NewSnapshot(takenAt time.Time, states ...MarketState) (*Snapshot, error) {
	s := &Snapshot{
		states:  make(map[string]MarketState, len(states)),
		ids:     make([]string, 0, len(states)),
		takenAt: takenAt,
	}
	for _, st := range states {
		if err := st.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.states[st.MarketID]; dup {
			return nil, fmt.Errorf("%w: duplicate market %s", ErrInvalidMarket, st.MarketID)
		}
		s.states[st.MarketID] = copyState(st)
		s.ids = append(s.ids, st.MarketID)
	}
	sort.Strings(s.ids)
	return s, nil
}

// TakenAt is when the host captured the snapshot.
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

// Get returns the state for a market. It never synthesizes a default market.
func (s *Snapshot) Get(marketID string) (MarketState, bool) {
	if s == nil {
		return MarketState{}, false
	}
	st, ok := s.states[marketID]
	if !ok {
		return MarketState{}, false
	}
	return copyState(st), true
}

// Lookup is Get with ErrDataUnavailable for a missing market.
func (s *Snapshot) Lookup(marketID string) (MarketState, error) {
	st, ok := s.Get(marketID)
	if !ok {
		return MarketState{}, fmt.Errorf("%w: %s", ErrDataUnavailable, marketID)
	}
	return st, nil
}

// All returns a copy of every state keyed by market id.
func (s *Snapshot) All() map[string]MarketState {
	if s == nil {
		return map[string]MarketState{}
	}
	out := make(map[string]MarketState, len(s.states))
	for id, st := range s.states {
		out[id] = copyState(st)
	}
	return out
}

// IDs returns the market ids in ascending order.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// States returns every state ordered by market id.
func (s *Snapshot) States() []MarketState {
	if s == nil {
		return nil
	}
	out := make([]MarketState, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, copyState(s.states[id]))
	}
	return out
}

// Len is the number of markets in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.states)
}

// Level is one price level of an orderbook.
type Level struct {
	Price float64
	Size  float64
}

// Book is a minimal orderbook view.
type Book struct {
	Bids []Level
	Asks []Level
}

// Orderbook derives a book from the snapshot. This is an approximation: no depth
// feed is consulted, so the book holds a single level at bid and at ask, each
// with SyntheticDepth as its size. An unknown market yields an empty book.
func (s *Snapshot) Orderbook(marketID string) Book {
	st, ok := s.Get(marketID)
	if !ok {
		return Book{Bids: []Level{}, Asks: []Level{}}
	}
	return Book{
		Bids: []Level{{Price: st.Bid, Size: SyntheticDepth}},
		Asks: []Level{{Price: st.Ask, Size: SyntheticDepth}},
	}
}

func copyState(st MarketState) MarketState {
	if st.LastPrice != nil {
		lp := *st.LastPrice
		st.LastPrice = &lp
	}
	return st
}
