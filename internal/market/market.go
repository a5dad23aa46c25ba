// Package market implements the lifecycle of a binary prediction market and
// its pari-mutuel stake accounting.
package market

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"prediction-market-amm/internal/domain"
	fp "prediction-market-amm/internal/fixedpoint"
)

var validate = validator.New()

// Params are the caller-supplied fields of a new market.
type Params struct {
	MarketID         string            `json:"market_id" validate:"required,max=50"`
	Kind             domain.MarketKind `json:"kind" validate:"omitempty,oneof=pari_mutuel amm"`
	Authority        string            `json:"authority" validate:"required"`
	Oracle           string            `json:"oracle"`
	Title            string            `json:"title" validate:"max=200"`
	Description      string            `json:"description" validate:"max=1000"`
	Category         string            `json:"category" validate:"max=50"`
	ResolutionSource string            `json:"resolution_source" validate:"max=200"`
	EndTime          int64             `json:"end_time"`
	CreatorFeeRate   uint16            `json:"creator_fee_rate" validate:"lte=1000"`
	PlatformFeeRate  uint16            `json:"platform_fee_rate" validate:"lte=1000"`
	MinBetAmount     uint64            `json:"min_bet_amount" validate:"gt=0"`
	MaxBetAmount     uint64            `json:"max_bet_amount" validate:"gtefield=MinBetAmount"`
}

// Validate checks length and range constraints and that EndTime is after now.
func (p *Params) Validate(now int64) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, describe(err))
	}
	if p.EndTime <= now {
		return fmt.Errorf("%w: end_time must be in the future", domain.ErrValidation)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}

// Initialize validates p and returns an open market with zero accumulators.
// An empty Kind is pari-mutuel and an empty Oracle is the authority.
func Initialize(address string, p Params, now int64) (*domain.Market, error) {
	if err := p.Validate(now); err != nil {
		return nil, err
	}
	kind := p.Kind
	if kind == "" {
		kind = domain.KindPariMutuel
	}
	oracle := p.Oracle
	if oracle == "" {
		oracle = p.Authority
	}

	return &domain.Market{
		Address:          address,
		MarketID:         p.MarketID,
		Kind:             kind,
		Authority:        p.Authority,
		Oracle:           oracle,
		Title:            p.Title,
		Description:      p.Description,
		Category:         p.Category,
		ResolutionSource: p.ResolutionSource,
		EndTime:          p.EndTime,
		CreatorFeeRate:   p.CreatorFeeRate,
		PlatformFeeRate:  p.PlatformFeeRate,
		MinBetAmount:     p.MinBetAmount,
		MaxBetAmount:     p.MaxBetAmount,
		CreatedAt:        now,
	}, nil
}

// PlaceBet adds amount to the side's accumulator.
func PlaceBet(m *domain.Market, amount uint64, side domain.Side, now int64) error {
	if m.Resolved {
		return domain.ErrMarketClosed
	}
	if IsExpired(m, now) {
		return domain.ErrMarketExpired
	}
	if !side.Valid() {
		return fmt.Errorf("%w: side %q", domain.ErrValidation, side)
	}
	if amount < m.MinBetAmount || amount > m.MaxBetAmount {
		return fmt.Errorf("%w: %d not in [%d, %d]",
			domain.ErrBetOutOfRange, amount, m.MinBetAmount, m.MaxBetAmount)
	}

	if side == domain.SideYes {
		total, err := fp.Add(m.TotalYesAmount, amount)
		if err != nil {
			return err
		}
		m.TotalYesAmount = total
		return nil
	}
	total, err := fp.Add(m.TotalNoAmount, amount)
	if err != nil {
		return err
	}
	m.TotalNoAmount = total
	return nil
}

// Resolve fixes the outcome. The caller must be the market's oracle.
func Resolve(m *domain.Market, caller string, outcome bool, now int64) error {
	if m.Resolved {
		return domain.ErrAlreadyResolved
	}
	if !IsExpired(m, now) {
		return domain.ErrResolutionTooEarly
	}
	if caller != m.Oracle {
		return domain.ErrUnauthorizedResolver
	}

	m.Resolved = true
	m.Resolution = &outcome
	m.ResolvedAt = &now
	return nil
}

// TotalPool is the sum of both accumulators, saturating.
func TotalPool(m *domain.Market) uint64 {
	return fp.SaturatingAdd(m.TotalYesAmount, m.TotalNoAmount)
}

// YesOdds is the yes share of the pool; exactly 0.5 with no stakes.
func YesOdds(m *domain.Market) decimal.Decimal {
	return share(m.TotalYesAmount, TotalPool(m))
}

// NoOdds is the no share of the pool; exactly 0.5 with no stakes.
func NoOdds(m *domain.Market) decimal.Decimal {
	return share(m.TotalNoAmount, TotalPool(m))
}

var half = decimal.New(5, -1)

func share(side, total uint64) decimal.Decimal {
	if total == 0 {
		return half
	}
	return toDecimal(side).Div(toDecimal(total))
}

func toDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// IsExpired reports whether betting has closed.
func IsExpired(m *domain.Market, now int64) bool {
	return now >= m.EndTime
}

// CanResolve reports whether Resolve would pass its lifecycle checks.
func CanResolve(m *domain.Market, now int64) bool {
	return !m.Resolved && IsExpired(m, now)
}
