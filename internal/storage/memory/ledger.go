package memory

import (
	"context"
	"fmt"

	"prediction-market-amm/internal/domain"
	fp "prediction-market-amm/internal/fixedpoint"
	"prediction-market-amm/internal/storage"
)

// ledger implements storage.Ledger inside a transaction.
type ledger struct {
	t *txn
}

// Balance returns the staged or committed balance.
func (l ledger) Balance(_ context.Context, account string) (uint64, error) {
	return l.t.balance(account), nil
}

// Credit adds amount to account.
func (l ledger) Credit(_ context.Context, account string, amount uint64) error {
	if account == "" {
		return storage.ErrInvalidInput
	}
	next, err := fp.Add(l.t.balance(account), amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	l.t.balances[account] = next
	return nil
}

// Transfer moves amount between accounts.
func (l ledger) Transfer(_ context.Context, from, to string, amount uint64) error {
	if from == "" || to == "" {
		return storage.ErrInvalidInput
	}
	if from == to || amount == 0 {
		return nil
	}

	src := l.t.balance(from)
	if src < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", domain.ErrInsufficientFunds, from, src, amount)
	}
	dst, err := fp.Add(l.t.balance(to), amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}

	l.t.balances[from] = src - amount
	l.t.balances[to] = dst
	return nil
}

var _ storage.Ledger = ledger{}
