// Package credits is the Postgres adapter for the credit-gate boundary.
// Ledger bookkeeping lives in the surrounding system; this adapter only
// answers the yes/no admission question and applies the debit.
package credits

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// actionCosts maps action kinds to their credit cost.
var actionCosts = map[string]int{
	"job_scan": 1,
}

// Gate implements scan.CreditGate on the user_credits table.
type Gate struct {
	pool *pgxpool.Pool
}

// NewGate constructs a Gate.
func NewGate(pool *pgxpool.Pool) *Gate {
	return &Gate{pool: pool}
}

// CanPerform reports whether the user holds enough credits for the action.
// An unknown user has zero credits.
func (g *Gate) CanPerform(ctx context.Context, userID, action string) (bool, error) {
	cost, ok := actionCosts[action]
	if !ok {
		return false, fmt.Errorf("unknown action %q", action)
	}

	var balance int
	err := g.pool.QueryRow(ctx,
		`SELECT credits FROM user_credits WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query credits for %s: %w", userID, err)
	}
	return balance >= cost, nil
}

// Debit subtracts the action's cost. The balance guard in the WHERE clause
// keeps concurrent debits from going negative.
func (g *Gate) Debit(ctx context.Context, userID, action string) error {
	cost, ok := actionCosts[action]
	if !ok {
		return fmt.Errorf("unknown action %q", action)
	}

	tag, err := g.pool.Exec(ctx,
		`UPDATE user_credits SET credits = credits - $2 WHERE user_id = $1 AND credits >= $2`,
		userID, cost,
	)
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("debit %s: insufficient balance", userID)
	}
	return nil
}
