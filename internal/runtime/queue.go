package runtime

import (
	"sync"

	"polytrader/internal/order"
)

// OrderQueue holds orders that passed the risk gate and wait for the host.
// Only the Runtime appends to it; the host can only take everything at once.
type OrderQueue struct {
	mu     sync.Mutex
	orders []order.Order
}

func (q *OrderQueue) enqueue(orders ...order.Order) {
	if len(orders) == 0 {
		return
	}
	q.mu.Lock()
	q.orders = append(q.orders, orders...)
	q.mu.Unlock()
}

// Drain returns every queued order in enqueue order and empties the queue.
func (q *OrderQueue) Drain() []order.Order {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.orders
	q.orders = nil
	if out == nil {
		return []order.Order{}
	}
	return out
}

// Len is the number of orders waiting to be drained.
func (q *OrderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.orders)
}
