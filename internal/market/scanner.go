package market

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jonnyspicer/mango"
)

// ManifoldClient is the subset of *mango.Client the scanner needs.
type ManifoldClient interface {
	SearchMarkets(req mango.SearchMarketsRequest) (*[]mango.FullMarket, error)
}

// ScannerConfig controls which markets are scanned and how quotes are synthesized.
type ScannerConfig struct {
	Limit           int64
	MinLiquidity    float64
	SyntheticSpread float64
}

// Scanner fetches open binary markets from Manifold and turns them into a
// Snapshot. Manifold's CPMM markets have no book, so bid and ask are
// synthesized around the market probability.
type Scanner struct {
	client ManifoldClient
	cache  *Cache
	cfg    ScannerConfig
}

func NewScanner(client ManifoldClient, cache *Cache, cfg ScannerConfig) *Scanner {
	return &Scanner{client: client, cache: cache, cfg: cfg}
}

// Snapshot scans markets and returns a fresh snapshot. If the scan fails, the
// snapshot is served from the cache as long as it still holds live entries.
func (s *Scanner) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	states, err := s.ScanBinary()
	if err != nil {
		slog.Warn("market scan failed, serving cached snapshot", "error", err)
		snap, cerr := s.cache.Snapshot()
		if cerr != nil {
			return nil, fmt.Errorf("building cached snapshot: %w", cerr)
		}
		if snap.Len() == 0 {
			return nil, err
		}
		return snap, nil
	}

	s.cache.SetAll(states)
	return s.cache.Snapshot()
}

// ScanBinary fetches open binary markets sorted by liquidity.
func (s *Scanner) ScanBinary() ([]MarketState, error) {
	markets, err := s.client.SearchMarkets(mango.SearchMarketsRequest{
		Filter:       "open",
		ContractType: "BINARY",
		Sort:         "liquidity",
		Limit:        s.cfg.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching binary markets: %w", err)
	}
	if markets == nil {
		return nil, nil
	}

	result := make([]MarketState, 0, len(*markets))
	for _, m := range *markets {
		if string(m.OutcomeType) != "BINARY" || m.IsResolved {
			continue
		}
		if m.TotalLiquidity < s.cfg.MinLiquidity {
			continue
		}
		st, err := s.stateFromMarket(m)
		if err != nil {
			slog.Debug("skipping market", "market", m.Id, "error", err)
			continue
		}
		result = append(result, st)
	}
	slog.Info("scanned binary markets", "count", len(result))
	return result, nil
}

func (s *Scanner) stateFromMarket(m mango.FullMarket) (MarketState, error) {
	p := m.Probability
	if p <= 0 || p >= 1 {
		return MarketState{}, fmt.Errorf("%w: probability %v out of (0, 1)", ErrInvalidMarket, p)
	}
	half := s.cfg.SyntheticSpread / 2
	bid := math.Max(p-half, 0)
	ask := math.Min(p+half, 1)

	st := MarketState{
		MarketID: m.Id,
		TokenID:  "YES",
		Bid:      bid,
		Ask:      ask,
		Midpoint: p,
		Spread:   ask - bid,
		Volume:   m.Volume24Hours,
	}.WithLastPrice(p)
	return st, st.Validate()
}
