package fee

import (
	"errors"
	"math"

	"CastVault/internal/principal"
)

// RateBps is the protocol fee, fixed at 1% of every purchase.
const RateBps int64 = 100

const bpsDenominator int64 = 10_000

var (
	// ErrAmountTooLarge is returned when the fee computation would overflow int64.
	ErrAmountTooLarge = errors.New("amount too large for fee computation")
	// ErrInvalidRecipient is returned when the fee recipient would be the zero principal.
	ErrInvalidRecipient = errors.New("fee recipient must not be the zero principal")
)

// Compute returns floor(amount * RateBps / 10000). Amounts whose product with
// the rate would exceed int64 are rejected rather than allowed to wrap.
func Compute(amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrAmountTooLarge
	}
	if amount > math.MaxInt64/RateBps {
		return 0, ErrAmountTooLarge
	}
	return amount * RateBps / bpsDenominator, nil
}

// Engine holds the fee recipient for purchase-time fee settlement.
type Engine struct {
	recipient principal.Principal
}

func NewEngine(recipient principal.Principal) (*Engine, error) {
	if recipient.IsZero() {
		return nil, ErrInvalidRecipient
	}
	return &Engine{recipient: recipient}, nil
}

// Recipient returns the current fee recipient.
func (e *Engine) Recipient() principal.Principal {
	return e.recipient
}

// SetRecipient changes where fees are paid. Zero principals are rejected so
// fees can never be burned by misconfiguration.
func (e *Engine) SetRecipient(recipient principal.Principal) error {
	if recipient.IsZero() {
		return ErrInvalidRecipient
	}
	e.recipient = recipient
	return nil
}
