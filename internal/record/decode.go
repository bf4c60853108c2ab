package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalPayload decodes a JSON payload into the concrete record type for t.
func UnmarshalPayload(t Type, data []byte) (Record, error) {
	var rec Record
	switch t {
	case TypePurchaseExecuted:
		rec = &PurchaseExecuted{}
	case TypeFeeCollected:
		rec = &FeeCollected{}
	case TypeBuyLimitChanged:
		rec = &BuyLimitChanged{}
	case TypeSocialAmountsChanged:
		rec = &SocialAmountsChanged{}
	case TypeWithdrawalExecuted:
		rec = &WithdrawalExecuted{}
	case TypeBalanceSwapped:
		rec = &BalanceSwapped{}
	case TypeBackendAuthorized:
		rec = &BackendAuthorized{}
	case TypeBackendDeauthorized:
		rec = &BackendDeauthorized{}
	case TypeOwnershipTransferred:
		rec = &OwnershipTransferred{}
	case TypeFeeRecipientChanged:
		rec = &FeeRecipientChanged{}
	case TypeFeesSwept:
		rec = &FeesSwept{}
	case TypeEmergencyWithdrawal:
		rec = &EmergencyWithdrawal{}
	default:
		return nil, fmt.Errorf("unknown record type: %d", t)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return rec, nil
}

type envelopeWire struct {
	Sequence       int64           `json:"sequence"`
	Type           Type            `json:"type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes an envelope, resolving the payload's concrete type
// from the type discriminator.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	payload, err := UnmarshalPayload(wire.Type, wire.Payload)
	if err != nil {
		return err
	}
	e.Sequence = wire.Sequence
	e.Type = wire.Type
	e.IdempotencyKey = wire.IdempotencyKey
	e.Timestamp = wire.Timestamp
	e.Payload = payload
	return nil
}
