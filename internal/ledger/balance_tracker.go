package ledger

import (
	"fmt"

	"CastVault/internal/principal"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetClaimBalance returns a user's claim balance for an asset.
func (bt *BalanceTracker) GetClaimBalance(user principal.Principal, asset AssetID) int64 {
	return bt.GetBalance(NewClaimsAccountKey(user, asset))
}

// GetCustodyBalance returns the unallocated custodial holdings of an asset.
func (bt *BalanceTracker) GetCustodyBalance(asset AssetID) int64 {
	return bt.GetBalance(NewCustodyAccountKey(asset))
}

// TotalUserClaims sums every user claim balance for an asset.
func (bt *BalanceTracker) TotalUserClaims(asset AssetID) int64 {
	var total int64
	for key, balance := range bt.balances {
		if key.Scope == AccountScopeUser && key.SubType == SubTypeClaims && key.Asset == asset {
			total += balance
		}
	}
	return total
}

// ValidateSufficientClaim checks the user holds at least the required claim amount.
func (bt *BalanceTracker) ValidateSufficientClaim(user principal.Principal, asset AssetID, required int64) error {
	have := bt.GetClaimBalance(user, asset)
	if have < required {
		return fmt.Errorf("insufficient claim balance: have=%d, need=%d", have, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances per asset (should be 0 for a zero-sum book)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.Asset] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for projections and rebuild checks)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
