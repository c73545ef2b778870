package collector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"polytrader/internal/market"
)

// Collector persists the market snapshots cycles ran against.
type Collector struct {
	db *sql.DB
}

func NewCollector(db *sql.DB) *Collector {
	return &Collector{db: db}
}

// Collect stores every market of the snapshot.
func (c *Collector) Collect(ctx context.Context, snap *market.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("no snapshot to collect")
	}

	takenAt := snap.TakenAt().UTC().Format(time.RFC3339Nano)
	upserted, snapshotted := 0, 0
	for _, st := range snap.States() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.upsertMarket(ctx, st); err != nil {
			slog.Warn("failed to upsert market", "id", st.MarketID, "error", err)
			continue
		}
		upserted++

		if err := c.snapshot(ctx, st, takenAt); err != nil {
			slog.Warn("failed to snapshot market", "id", st.MarketID, "error", err)
			continue
		}
		snapshotted++
	}

	slog.Info("collection complete", "markets_upserted", upserted, "snapshots_taken", snapshotted)
	return nil
}

func (c *Collector) upsertMarket(ctx context.Context, st market.MarketState) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO markets (id, token_id)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token_id = excluded.token_id,
			last_updated_at = datetime('now')`,
		st.MarketID, st.TokenID,
	)
	return err
}

func (c *Collector) snapshot(ctx context.Context, st market.MarketState, takenAt string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (market_id, bid, ask, midpoint, spread, volume, last_price, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.MarketID, st.Bid, st.Ask, st.Midpoint, st.Spread, st.Volume, st.LastPrice, takenAt,
	)
	return err
}

// Latest rebuilds the most recent stored state of each market. The scheduler
// uses it to price sinks on a warm start.
func (c *Collector) Latest(ctx context.Context) (*market.Snapshot, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.market_id, m.token_id, s.bid, s.ask, s.midpoint, s.spread, s.volume, s.last_price, s.taken_at
		FROM market_snapshots s
		JOIN markets m ON m.id = s.market_id
		WHERE s.id IN (SELECT MAX(id) FROM market_snapshots GROUP BY market_id)
		ORDER BY s.market_id`)
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshots: %w", err)
	}
	defer rows.Close()

	var states []market.MarketState
	var newest time.Time
	for rows.Next() {
		var st market.MarketState
		var lastPrice sql.NullFloat64
		var takenAt string
		if err := rows.Scan(&st.MarketID, &st.TokenID, &st.Bid, &st.Ask, &st.Midpoint, &st.Spread, &st.Volume, &lastPrice, &takenAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if lastPrice.Valid {
			st = st.WithLastPrice(lastPrice.Float64)
		}
		if ts, err := time.Parse(time.RFC3339Nano, takenAt); err == nil && ts.After(newest) {
			newest = ts
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return market.NewSnapshot(newest, states...)
}
