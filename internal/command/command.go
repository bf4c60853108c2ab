package command

import (
	"time"

	"CastVault/internal/principal"
)

// Kind discriminator for command payloads
type Kind int32

const (
	KindUnknown Kind = iota
	KindDirectBuy
	KindSocialBuy
	KindSmartSwap
	KindPooledSwap
	KindWithdraw
	KindSetBuyLimit
	KindSetSocialAmounts
	KindSetPreferences
	KindDisableSocial
	KindUpdateLike
	KindUpdateRecast
	KindAuthorizeBackend
	KindDeauthorizeBackend
	KindTransferOwnership
	KindSetFeeRecipient
	KindSweepFees
	KindEmergencyWithdraw
)

// Command is the interface all inbound command payloads implement.
type Command interface {
	// IdempotencyKey returns the stable dedup key.
	IdempotencyKey() string

	// Kind returns the discriminator.
	Kind() Kind

	// CallerID returns the principal submitting the command.
	CallerID() principal.Principal

	// Time returns the versioned input timestamp (not wall-clock).
	Time() time.Time
}

func (k Kind) String() string {
	switch k {
	case KindDirectBuy:
		return "DirectBuy"
	case KindSocialBuy:
		return "SocialBuy"
	case KindSmartSwap:
		return "SmartSwap"
	case KindPooledSwap:
		return "PooledSwap"
	case KindWithdraw:
		return "Withdraw"
	case KindSetBuyLimit:
		return "SetBuyLimit"
	case KindSetSocialAmounts:
		return "SetSocialAmounts"
	case KindSetPreferences:
		return "SetPreferences"
	case KindDisableSocial:
		return "DisableSocial"
	case KindUpdateLike:
		return "UpdateLike"
	case KindUpdateRecast:
		return "UpdateRecast"
	case KindAuthorizeBackend:
		return "AuthorizeBackend"
	case KindDeauthorizeBackend:
		return "DeauthorizeBackend"
	case KindTransferOwnership:
		return "TransferOwnership"
	case KindSetFeeRecipient:
		return "SetFeeRecipient"
	case KindSweepFees:
		return "SweepFees"
	case KindEmergencyWithdraw:
		return "EmergencyWithdraw"
	default:
		return "Unknown"
	}
}
