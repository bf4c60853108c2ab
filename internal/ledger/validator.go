package ledger

import (
	"fmt"

	"CastVault/internal/principal"
)

// InvariantValidator checks ledger invariants after every applied batch.
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies the batch is well-formed and balanced.
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateClaimNonNegative checks a user's claim balance never goes negative.
func (v *InvariantValidator) ValidateClaimNonNegative(user principal.Principal, asset AssetID) error {
	return v.tracker.ValidateNonNegative(NewClaimsAccountKey(user, asset))
}

// ValidateCustodySolvent checks custody holds at least the sum of outstanding
// claims. Since claims are only ever credited by transfers out of custody, this
// reduces to the custody account itself staying non-negative per asset.
func (v *InvariantValidator) ValidateCustodySolvent(asset AssetID) error {
	balance := v.tracker.GetCustodyBalance(asset)
	if balance < 0 {
		return fmt.Errorf("custody for %s is insolvent: %d", asset, balance)
	}
	return nil
}

// ValidateGlobalBalance verifies the book is zero-sum per asset.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for asset, total := range totals {
		if total != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %d", asset, total)
		}
	}

	return nil
}

// ValidateBatchEffects runs the post-apply checks for every account a batch
// touched. A failure here means state is already corrupt; callers treat it as
// fatal.
func (v *InvariantValidator) ValidateBatchEffects(batch *Batch) error {
	for _, j := range batch.Journals {
		for _, key := range [2]AccountKey{j.DebitAccount, j.CreditAccount} {
			switch {
			case key.Scope == AccountScopeUser && key.SubType == SubTypeClaims:
				if err := v.ValidateClaimNonNegative(key.EntityID, key.Asset); err != nil {
					return err
				}
			case key.Scope == AccountScopeSystem && key.SubType == SubTypeCustody:
				if err := v.ValidateCustodySolvent(key.Asset); err != nil {
					return err
				}
			}
		}
	}
	return v.ValidateGlobalBalance()
}
