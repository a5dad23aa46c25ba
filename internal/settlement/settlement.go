// Package settlement computes what a resolved market owes a position.
// It never moves value: the caller commits the returned payout through the
// ledger in the same transaction that persists the claimed position.
package settlement

import (
	"fmt"

	"prediction-market-amm/internal/domain"
	fp "prediction-market-amm/internal/fixedpoint"
)

// Book settles positions of one market kind.
type Book interface {
	// Payout returns what pos would receive, without any ownership or claimed checks.
	Payout(pos *domain.Position) (uint64, error)
	// Claim checks the claim, marks pos claimed and returns the payout.
	Claim(caller string, pos *domain.Position) (uint64, error)
}

// ForMarket returns the book for m. AMM markets require their pool.
func ForMarket(m *domain.Market, pool *domain.LiquidityPool) (Book, error) {
	switch m.Kind {
	case domain.KindPariMutuel:
		return &PariMutuel{market: m}, nil
	case domain.KindAMM:
		if pool == nil || pool.Market != m.Address {
			return nil, fmt.Errorf("%w: amm market %s has no pool", domain.ErrValidation, m.Address)
		}
		return &PoolBacked{market: m, pool: pool}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrWrongMarketKind, m.Kind)
}

// PariMutuel splits the whole pool between winning stakes pro rata.
type PariMutuel struct {
	market *domain.Market
}

// Payout is winning_stake * total_pool / total_winning_pool, floored.
func (b *PariMutuel) Payout(pos *domain.Position) (uint64, error) {
	side, stake, err := winningStake(b.market, pos)
	if err != nil {
		return 0, err
	}
	total, err := fp.Add(b.market.TotalYesAmount, b.market.TotalNoAmount)
	if err != nil {
		return 0, err
	}
	winning := b.market.TotalNoAmount
	if side == domain.SideYes {
		winning = b.market.TotalYesAmount
	}
	return fp.MulDiv(stake, total, winning)
}

// Claim implements Book.
func (b *PariMutuel) Claim(caller string, pos *domain.Position) (uint64, error) {
	if err := checkClaim(b.market, caller, pos); err != nil {
		return 0, err
	}
	return claim(b, pos)
}

// PoolBacked redeems winning outcome tokens against the collateral locked
// through the pool: tokens * collateral / winning supply, floored.
type PoolBacked struct {
	market *domain.Market
	pool   *domain.LiquidityPool
}

// Payout implements Book.
func (b *PoolBacked) Payout(pos *domain.Position) (uint64, error) {
	side, tokens, err := winningStake(b.market, pos)
	if err != nil {
		return 0, err
	}
	return fp.MulDiv(tokens, b.pool.Collateral, b.pool.Supply(side))
}

// Claim implements Book. A claim closes the position, so everything the
// position is still owed must be in it first: liquidity shares burned and,
// for the pool authority, fees collected.
func (b *PoolBacked) Claim(caller string, pos *domain.Position) (uint64, error) {
	if err := checkClaim(b.market, caller, pos); err != nil {
		return 0, err
	}
	if pos.LiquidityShares > 0 {
		return 0, fmt.Errorf("%w: position still holds %d liquidity shares",
			domain.ErrLiquidityNotWithdrawn, pos.LiquidityShares)
	}
	if pos.Owner == b.pool.Authority && b.pool.AccumulatedFees > 0 {
		return 0, fmt.Errorf("%w: %d fee tokens uncollected",
			domain.ErrFeesNotCollected, b.pool.AccumulatedFees)
	}
	return claim(b, pos)
}

func winningStake(m *domain.Market, pos *domain.Position) (domain.Side, uint64, error) {
	side, ok := m.Outcome()
	if !ok {
		return "", 0, domain.ErrMarketNotResolved
	}
	if pos.Market != m.Address {
		return "", 0, fmt.Errorf("%w: position %s is not in market %s", domain.ErrValidation, pos.Address, m.Address)
	}
	stake := pos.Tokens(side)
	if stake == 0 {
		return "", 0, domain.ErrNoWinnings
	}
	return side, stake, nil
}

func checkClaim(m *domain.Market, caller string, pos *domain.Position) error {
	if _, ok := m.Outcome(); !ok {
		return domain.ErrMarketNotResolved
	}
	if caller != pos.Owner {
		return domain.ErrNotPositionOwner
	}
	if pos.Claimed {
		return domain.ErrAlreadyClaimed
	}
	return nil
}

func claim(b Book, pos *domain.Position) (uint64, error) {
	payout, err := b.Payout(pos)
	if err != nil {
		return 0, err
	}
	pos.Claimed = true
	pos.ClaimedAmount = payout
	return payout, nil
}
