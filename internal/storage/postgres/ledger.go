package postgres

import (
	"context"
	"fmt"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// Ledger implements storage.Ledger on the ledger_balances table.
type Ledger struct {
	q querier
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Balance returns the balance of account, zero if it has no row.
func (l *Ledger) Balance(ctx context.Context, account string) (uint64, error) {
	var balance int64
	err := l.q.QueryRow(ctx, `SELECT balance FROM ledger_balances WHERE account = $1`, account).Scan(&balance)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return fromBigint("balance", balance)
}

// Credit adds amount to account, creating the row on first use.
func (l *Ledger) Credit(ctx context.Context, account string, amount uint64) error {
	if account == "" {
		return storage.ErrInvalidInput
	}
	v, err := toBigint("amount", amount)
	if err != nil {
		return err
	}
	return l.add(ctx, account, v)
}

func (l *Ledger) add(ctx context.Context, account string, amount int64) error {
	query := `
		INSERT INTO ledger_balances (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = ledger_balances.balance + EXCLUDED.balance
	`
	if _, err := l.q.Exec(ctx, query, account, amount); err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	return nil
}

// Transfer debits from only if it covers amount, then credits to.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if from == "" || to == "" {
		return storage.ErrInvalidInput
	}
	if from == to || amount == 0 {
		return nil
	}
	v, err := toBigint("amount", amount)
	if err != nil {
		return err
	}

	tag, err := l.q.Exec(ctx,
		`UPDATE ledger_balances SET balance = balance - $2 WHERE account = $1 AND balance >= $2`,
		from, v,
	)
	if err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		held, err := l.Balance(ctx, from)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s holds %d, needs %d", domain.ErrInsufficientFunds, from, held, amount)
	}

	return l.add(ctx, to, v)
}
