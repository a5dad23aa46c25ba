package amm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prediction-market-amm/internal/domain"
)

func TestProvideLiquidityLocksCollateral(t *testing.T) {
	p, err := NewPool("pool", "market", "authority", 100, 0)
	require.NoError(t, err)

	shares, err := ProvideLiquidity(p, 100_001)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_001), shares)
	assert.Equal(t, uint64(100_001), p.Collateral)
	assert.Equal(t, uint64(50_000), p.YesSupply)
	assert.Equal(t, uint64(50_000), p.NoSupply)
	assert.Equal(t, uint64(50_000), p.YesReserves)
}

func TestBuy(t *testing.T) {
	p, err := NewPool("pool", "market", "authority", 100, 0)
	require.NoError(t, err)
	_, err = ProvideLiquidity(p, 100_000)
	require.NoError(t, err)

	res, err := Buy(p, 1000, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, domain.SideYes, res.Side)
	assert.Equal(t, uint64(1000), res.Minted)
	assert.Equal(t, domain.NoToYes, res.Swap.Direction)
	assert.Equal(t, uint64(971), res.Swap.Output)
	assert.Equal(t, uint64(1971), res.Tokens)

	assert.Equal(t, uint64(101_000), p.Collateral)
	assert.Equal(t, uint64(51_000), p.YesSupply)
	assert.Equal(t, uint64(51_000), p.NoSupply)
	assert.Equal(t, uint64(49_029), p.YesReserves)
	assert.Equal(t, uint64(50_990), p.NoReserves)
	assert.Equal(t, uint64(10), p.AccumulatedFees)

	// every minted yes token is either held by the buyer or in reserve
	assert.Equal(t, p.YesSupply, res.Tokens+p.YesReserves)
	// no tokens are in reserve or withheld as fees
	assert.Equal(t, p.NoSupply, p.NoReserves+p.AccumulatedFees)
}

func TestBuyFailureLeavesPoolUnchanged(t *testing.T) {
	p, err := NewPool("pool", "market", "authority", 100, 0)
	require.NoError(t, err)

	before := *p
	_, err = Buy(p, 1000, domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
	assert.Equal(t, before, *p)

	_, err = ProvideLiquidity(p, 10_000)
	require.NoError(t, err)
	Deactivate(p)
	before = *p
	_, err = Buy(p, 1000, domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrPoolInactive)
	assert.Equal(t, before, *p)

	_, err = Buy(p, 0, domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = Buy(p, 10, domain.Side("maybe"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
