package runtime

import (
	"context"

	"polytrader/internal/market"
	"polytrader/internal/order"
)

// MarketDataSource produces the snapshot a cycle runs against.
type MarketDataSource interface {
	Snapshot(ctx context.Context) (*market.Snapshot, error)
}

// AccountSource reports the positions and cash balance a cycle runs against.
type AccountSource interface {
	Account(ctx context.Context) (market.PositionBook, float64, error)
}

// OrderSink receives drained orders for transmission or recording.
type OrderSink interface {
	Name() string
	Submit(ctx context.Context, strategyName string, orders []order.Order) error
}
