package execution

import (
	"database/sql"
	"fmt"

	"polytrader/internal/order"
)

func recordSubmission(db *sql.DB, sink, strategyName string, o order.Order, outcome string, amount float64, limitProb *float64, submitErr error) error {
	status := "placed"
	var errText *string
	if submitErr != nil {
		status = "failed"
		s := submitErr.Error()
		errText = &s
	}

	_, err := db.Exec(`
		INSERT INTO submissions (sink, strategy, market_id, token_id, side, order_type, size, price, outcome, amount, limit_prob, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sink, strategyName, o.MarketID, o.TokenID, o.Side.String(), o.Type.String(), o.Size, o.Price,
		outcome, amount, limitProb, status, errText,
	)
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	return nil
}
