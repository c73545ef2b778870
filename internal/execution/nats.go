package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"polytrader/internal/order"
)

// NATSConfig configures the order publisher.
type NATSConfig struct {
	URL            string
	Subject        string
	ClientID       string
	ConnectTimeout time.Duration
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// OrderMessage is the payload published for every drained order.
type OrderMessage struct {
	Strategy string      `json:"strategy"`
	Order    order.Order `json:"order"`
	SentAt   time.Time   `json:"sent_at"`
}

// NATS publishes drained orders on <subject>.<strategy> so downstream
// executors can consume them. It never decides anything about the order.
type NATS struct {
	nc      *nats.Conn
	pub     publisher
	subject string
}

// NewNATS connects to the server. Reconnects are handled by the client.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected, attempting reconnect", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w", err)
	}
	slog.Info("connected to nats", "url", nc.ConnectedUrl(), "subject", cfg.Subject)
	return &NATS{nc: nc, pub: nc, subject: cfg.Subject}, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Submit(ctx context.Context, strategyName string, orders []order.Order) error {
	subject := n.subject + "." + strategyName
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(OrderMessage{Strategy: strategyName, Order: o, SentAt: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("encoding order for %s: %w", o.MarketID, err)
		}
		if err := n.pub.Publish(subject, data); err != nil {
			return fmt.Errorf("publishing to %s: %w", subject, err)
		}
	}
	slog.Debug("orders published", "subject", subject, "count", len(orders))
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
