package domain

import "errors"

// Kind classifies a failure for the immediate caller. None of the kinds are
// retried internally.
type Kind string

const (
	KindValidation    Kind = "validation"    // bad input, not retryable without changing it
	KindState         Kind = "state"         // wrong lifecycle phase
	KindArithmetic    Kind = "arithmetic"    // overflow, underflow, division by zero
	KindAuthorization Kind = "authorization" // wrong caller
	KindResource      Kind = "resource"      // insufficient liquidity or funds
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error is a classified failure. Sentinels below are compared with errors.Is;
// context is attached by wrapping with fmt.Errorf("...: %w", err).
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Validation errors.
var (
	ErrValidation    = newError(KindValidation, "validation failed")
	ErrBetOutOfRange = newError(KindValidation, "bet amount out of range")
	ErrFeeTooHigh    = newError(KindValidation, "fee rate too high")
	ErrInvalidAmount = newError(KindValidation, "invalid amount")
)

// State errors.
var (
	ErrMarketClosed          = newError(KindState, "market closed")
	ErrMarketExpired         = newError(KindState, "market expired")
	ErrAlreadyResolved       = newError(KindState, "market already resolved")
	ErrResolutionTooEarly    = newError(KindState, "resolution too early")
	ErrPoolInactive          = newError(KindState, "pool inactive")
	ErrMarketNotResolved     = newError(KindState, "market not resolved")
	ErrAlreadyClaimed        = newError(KindState, "already claimed")
	ErrNoWinnings            = newError(KindState, "no winnings")
	ErrWrongMarketKind       = newError(KindState, "operation not supported for market kind")
	ErrSlippageExceeded      = newError(KindState, "output below minimum")
	ErrLiquidityNotWithdrawn = newError(KindState, "withdraw liquidity first")
	ErrFeesNotCollected      = newError(KindState, "collect fees first")
)

// Arithmetic errors.
var (
	ErrArithmeticOverflow  = newError(KindArithmetic, "arithmetic overflow")
	ErrArithmeticUnderflow = newError(KindArithmetic, "arithmetic underflow")
	ErrDivisionByZero      = newError(KindArithmetic, "division by zero")
)

// Authorization errors.
var (
	ErrUnauthorizedResolver = newError(KindAuthorization, "unauthorized resolver")
	ErrNotPositionOwner     = newError(KindAuthorization, "not position owner")
	ErrUnauthorized         = newError(KindAuthorization, "unauthorized")
)

// Resource errors.
var (
	ErrInsufficientLiquidity = newError(KindResource, "insufficient liquidity")
	ErrInsufficientFunds     = newError(KindResource, "insufficient funds")
)

// KindOf reports the kind of the first classified error in err's chain.
// Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
