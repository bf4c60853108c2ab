package record

import (
	"CastVault/internal/ledger"
	"CastVault/internal/principal"
)

// PurchaseExecuted is emitted once per completed buy, direct or social.
type PurchaseExecuted struct {
	User         principal.Principal `json:"user"`
	OutputAsset  ledger.AssetID      `json:"output_asset"`
	InputAmount  int64               `json:"input_amount"`
	OutputAmount int64               `json:"output_amount"`
	Fee          int64               `json:"fee"`
	Venue        string              `json:"venue"`
	Social       bool                `json:"social"`
}

func (r *PurchaseExecuted) RecordType() Type { return TypePurchaseExecuted }

// FeeCollected is emitted alongside every purchase that paid a nonzero fee.
type FeeCollected struct {
	Recipient principal.Principal `json:"recipient"`
	Asset     ledger.AssetID      `json:"asset"`
	Amount    int64               `json:"amount"`
}

func (r *FeeCollected) RecordType() Type { return TypeFeeCollected }

// BuyLimitChanged is emitted when a user's limit is set.
type BuyLimitChanged struct {
	User  principal.Principal `json:"user"`
	Limit int64               `json:"limit"`
}

func (r *BuyLimitChanged) RecordType() Type { return TypeBuyLimitChanged }

// SocialAmountsChanged is emitted for every social-amount write, including
// disable (both zero) and single-amount updates.
type SocialAmountsChanged struct {
	User         principal.Principal `json:"user"`
	LikeAmount   int64               `json:"like_amount"`
	RecastAmount int64               `json:"recast_amount"`
}

func (r *SocialAmountsChanged) RecordType() Type { return TypeSocialAmountsChanged }

// WithdrawalExecuted is emitted when claims leave custody for a wallet.
type WithdrawalExecuted struct {
	User   principal.Principal `json:"user"`
	Asset  ledger.AssetID      `json:"asset"`
	Amount int64               `json:"amount"`
}

func (r *WithdrawalExecuted) RecordType() Type { return TypeWithdrawalExecuted }

// BalanceSwapped is emitted for claim-balance swaps, smart or pooled.
type BalanceSwapped struct {
	User      principal.Principal `json:"user"`
	InAsset   ledger.AssetID      `json:"in_asset"`
	OutAsset  ledger.AssetID      `json:"out_asset"`
	AmountIn  int64               `json:"amount_in"`
	AmountOut int64               `json:"amount_out"`
	Venue     string              `json:"venue"`
}

func (r *BalanceSwapped) RecordType() Type { return TypeBalanceSwapped }

// BackendAuthorized is emitted when the owner authorizes a backend.
type BackendAuthorized struct {
	Backend principal.Principal `json:"backend"`
}

func (r *BackendAuthorized) RecordType() Type { return TypeBackendAuthorized }

// BackendDeauthorized is emitted when the owner removes a backend.
type BackendDeauthorized struct {
	Backend principal.Principal `json:"backend"`
}

func (r *BackendDeauthorized) RecordType() Type { return TypeBackendDeauthorized }

// OwnershipTransferred is emitted when the owner role changes hands.
type OwnershipTransferred struct {
	PreviousOwner principal.Principal `json:"previous_owner"`
	NewOwner      principal.Principal `json:"new_owner"`
}

func (r *OwnershipTransferred) RecordType() Type { return TypeOwnershipTransferred }

// FeeRecipientChanged is emitted when the fee destination changes.
type FeeRecipientChanged struct {
	PreviousRecipient principal.Principal `json:"previous_recipient"`
	NewRecipient      principal.Principal `json:"new_recipient"`
}

func (r *FeeRecipientChanged) RecordType() Type { return TypeFeeRecipientChanged }

// FeesSwept is emitted when the vault's settlement surplus is paid out.
type FeesSwept struct {
	Recipient principal.Principal `json:"recipient"`
	Asset     ledger.AssetID      `json:"asset"`
	Amount    int64               `json:"amount"`
}

func (r *FeesSwept) RecordType() Type { return TypeFeesSwept }

// EmergencyWithdrawal is emitted when the owner drains vault wallet holdings.
type EmergencyWithdrawal struct {
	Owner  principal.Principal `json:"owner"`
	Asset  ledger.AssetID      `json:"asset"`
	Amount int64               `json:"amount"`
}

func (r *EmergencyWithdrawal) RecordType() Type { return TypeEmergencyWithdrawal }
