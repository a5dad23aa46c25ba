package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

const poolColumns = `
	address, market, authority, yes_reserves, no_reserves, total_liquidity,
	fee_rate, accumulated_fees, yes_fees, no_fees, is_active, collateral,
	yes_supply, no_supply, created_at, version`

// poolAmounts converts the pool's amount fields in column order.
func poolAmounts(p *domain.LiquidityPool) ([]any, error) {
	var b bigints
	out := []any{
		b.to("yes_reserves", p.YesReserves),
		b.to("no_reserves", p.NoReserves),
		b.to("total_liquidity", p.TotalLiquidity),
		int32(p.FeeRate),
		b.to("accumulated_fees", p.AccumulatedFees),
		b.to("yes_fees", p.YesFees),
		b.to("no_fees", p.NoFees),
		p.IsActive,
		b.to("collateral", p.Collateral),
		b.to("yes_supply", p.YesSupply),
		b.to("no_supply", p.NoSupply),
	}
	return out, b.err
}

// Insert adds a new pool. Returns ErrDuplicateKey if the market already has one,
// ErrInvalidInput if the market does not exist.
func (s *PoolStore) Insert(ctx context.Context, p *domain.LiquidityPool) error {
	if p == nil || p.Market == "" || p.Address == "" {
		return storage.ErrInvalidInput
	}
	amounts, err := poolAmounts(p)
	if err != nil {
		return err
	}

	query := `INSERT INTO liquidity_pools (` + poolColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)`

	args := append([]any{p.Address, p.Market, p.Authority}, amounts...)
	args = append(args, p.CreatedAt)

	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		switch {
		case isDuplicateKeyError(err):
			return storage.ErrDuplicateKey
		case isForeignKeyError(err):
			return fmt.Errorf("%w: market %s does not exist", storage.ErrInvalidInput, p.Market)
		}
		return fmt.Errorf("insert pool: %w", err)
	}

	p.Version = 1
	return nil
}

// GetByMarket retrieves the pool of a market.
func (s *PoolStore) GetByMarket(ctx context.Context, market string) (*domain.LiquidityPool, error) {
	query := `SELECT ` + poolColumns + ` FROM liquidity_pools WHERE market = $1`

	p, err := scanPool(s.q.QueryRow(ctx, query, market))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

// Update saves the pool state if p.Version is current.
func (s *PoolStore) Update(ctx context.Context, p *domain.LiquidityPool) error {
	if p == nil || p.Market == "" || p.Address == "" {
		return storage.ErrInvalidInput
	}
	amounts, err := poolAmounts(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE liquidity_pools
		SET yes_reserves = $3, no_reserves = $4, total_liquidity = $5,
			fee_rate = $6, accumulated_fees = $7, yes_fees = $8, no_fees = $9,
			is_active = $10, collateral = $11, yes_supply = $12, no_supply = $13,
			version = version + 1
		WHERE address = $1 AND version = $2
	`

	args := append([]any{p.Address, p.Version}, amounts...)
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, s.q, "liquidity_pools", p.Address)
	}

	p.Version++
	return nil
}

func scanPool(row pgx.Row) (*domain.LiquidityPool, error) {
	var (
		p                               domain.LiquidityPool
		yes, no, total, fees            int64
		yesFees, noFees                 int64
		collateral, yesSupply, noSupply int64
		feeRate                         int32
	)

	err := row.Scan(
		&p.Address, &p.Market, &p.Authority,
		&yes, &no, &total, &feeRate, &fees, &yesFees, &noFees, &p.IsActive,
		&collateral, &yesSupply, &noSupply,
		&p.CreatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}

	var b bigints
	p.YesReserves = b.from("yes_reserves", yes)
	p.NoReserves = b.from("no_reserves", no)
	p.TotalLiquidity = b.from("total_liquidity", total)
	p.FeeRate = uint16(feeRate)
	p.AccumulatedFees = b.from("accumulated_fees", fees)
	p.YesFees = b.from("yes_fees", yesFees)
	p.NoFees = b.from("no_fees", noFees)
	p.Collateral = b.from("collateral", collateral)
	p.YesSupply = b.from("yes_supply", yesSupply)
	p.NoSupply = b.from("no_supply", noSupply)
	if b.err != nil {
		return nil, b.err
	}
	return &p, nil
}
