package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonnyspicer/mango"
)

// Portfolio tracks the live Manifold account balance used for solvency checks.
type Portfolio struct {
	client *mango.Client

	mu              sync.RWMutex
	balance         float64
	investmentValue float64
	userID          string
}

func NewPortfolio(client *mango.Client) *Portfolio {
	return &Portfolio{client: client}
}

// Refresh fetches the latest balance and portfolio data from the API.
func (p *Portfolio) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	user, err := p.client.GetAuthenticatedUser()
	if err != nil {
		return fmt.Errorf("getting authenticated user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("authenticated user returned nil")
	}

	invested := 0.0
	portfolio, err := p.client.GetUserPortfolio(user.Id)
	if err != nil {
		// Non-fatal: the balance alone is enough to gate orders.
		slog.Warn("failed to get portfolio", "error", err)
	} else if portfolio != nil {
		invested = portfolio.InvestmentValue
	}

	p.mu.Lock()
	p.userID = user.Id
	p.balance = user.Balance
	p.investmentValue = invested
	p.mu.Unlock()

	slog.Info("portfolio refreshed",
		"balance", user.Balance,
		"invested", invested,
		"total", user.Balance+invested,
	)
	return nil
}

// Balance is the cash available for new orders as of the last refresh.
func (p *Portfolio) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

// TotalValue is balance plus the value of open investments.
func (p *Portfolio) TotalValue() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance + p.investmentValue
}
