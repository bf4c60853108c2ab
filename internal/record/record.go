package record

import (
	"time"
)

// Type discriminator for record payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypePurchaseExecuted
	TypeFeeCollected
	TypeBuyLimitChanged
	TypeSocialAmountsChanged
	TypeWithdrawalExecuted
	TypeBalanceSwapped
	TypeBackendAuthorized
	TypeBackendDeauthorized
	TypeOwnershipTransferred
	TypeFeeRecipientChanged
	TypeFeesSwept
	TypeEmergencyWithdrawal
)

// Record is the interface all emitted record payloads implement.
type Record interface {
	RecordType() Type
}

// Envelope wraps every record committed to the log.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64 `json:"sequence"`

	// Record type discriminator
	Type Type `json:"type"`

	// Idempotency key of the command that produced this record
	IdempotencyKey string `json:"idempotency_key"`

	// Versioned input timestamp (not wall-clock)
	Timestamp time.Time `json:"timestamp"`

	// Record-specific payload
	Payload Record `json:"payload"`
}

func (t Type) String() string {
	switch t {
	case TypePurchaseExecuted:
		return "PurchaseExecuted"
	case TypeFeeCollected:
		return "FeeCollected"
	case TypeBuyLimitChanged:
		return "BuyLimitChanged"
	case TypeSocialAmountsChanged:
		return "SocialAmountsChanged"
	case TypeWithdrawalExecuted:
		return "WithdrawalExecuted"
	case TypeBalanceSwapped:
		return "BalanceSwapped"
	case TypeBackendAuthorized:
		return "BackendAuthorized"
	case TypeBackendDeauthorized:
		return "BackendDeauthorized"
	case TypeOwnershipTransferred:
		return "OwnershipTransferred"
	case TypeFeeRecipientChanged:
		return "FeeRecipientChanged"
	case TypeFeesSwept:
		return "FeesSwept"
	case TypeEmergencyWithdrawal:
		return "EmergencyWithdrawal"
	default:
		return "Unknown"
	}
}

// Subject returns the NATS subject suffix for publishing, e.g.
// "purchase_executed" under cast.records.
func (t Type) Subject() string {
	switch t {
	case TypePurchaseExecuted:
		return "purchase_executed"
	case TypeFeeCollected:
		return "fee_collected"
	case TypeBuyLimitChanged:
		return "buy_limit_changed"
	case TypeSocialAmountsChanged:
		return "social_amounts_changed"
	case TypeWithdrawalExecuted:
		return "withdrawal_executed"
	case TypeBalanceSwapped:
		return "balance_swapped"
	case TypeBackendAuthorized:
		return "backend_authorized"
	case TypeBackendDeauthorized:
		return "backend_deauthorized"
	case TypeOwnershipTransferred:
		return "ownership_transferred"
	case TypeFeeRecipientChanged:
		return "fee_recipient_changed"
	case TypeFeesSwept:
		return "fees_swept"
	case TypeEmergencyWithdrawal:
		return "emergency_withdrawal"
	default:
		return "unknown"
	}
}
