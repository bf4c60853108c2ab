package token

import (
	"context"
	"errors"
	"sync"

	"CastVault/internal/ledger"
	"CastVault/internal/principal"
)

var (
	// ErrInsufficientAllowance is returned when a pull exceeds the owner's
	// pre-authorized allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrInsufficientFunds is returned when a transfer exceeds the source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Bank moves tokens between external wallets and the engine's custodian.
// Pull consumes the owner's pre-authorized settlement-asset allowance; Push
// pays tokens out of custody. Implementations sit at the settlement boundary;
// the ledger records the same movements as journal entries.
type Bank interface {
	// Pull moves amount of the settlement asset from owner's wallet into
	// custody, consuming allowance.
	Pull(ctx context.Context, owner principal.Principal, amount int64) error
	// Push moves amount of asset from custody to the recipient's wallet.
	Push(ctx context.Context, to principal.Principal, asset ledger.AssetID, amount int64) error
	// Allowance returns the remaining settlement-asset allowance for owner.
	Allowance(ctx context.Context, owner principal.Principal) (int64, error)
	// BalanceOf returns the wallet balance of asset for p.
	BalanceOf(ctx context.Context, p principal.Principal, asset ledger.AssetID) (int64, error)
}

// MemoryBank is an in-process Bank for tests and local runs. Balances and
// allowances are seeded directly.
type MemoryBank struct {
	mu         sync.Mutex
	settlement ledger.AssetID
	custodian  principal.Principal
	balances   map[principal.Principal]map[ledger.AssetID]int64
	allowances map[principal.Principal]int64
}

func NewMemoryBank(settlement ledger.AssetID, custodian principal.Principal) *MemoryBank {
	return &MemoryBank{
		settlement: settlement,
		custodian:  custodian,
		balances:   make(map[principal.Principal]map[ledger.AssetID]int64),
		allowances: make(map[principal.Principal]int64),
	}
}

// Mint seeds a wallet balance.
func (b *MemoryBank) Mint(p principal.Principal, asset ledger.AssetID, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(p, asset, amount)
}

// Approve seeds a settlement-asset allowance.
func (b *MemoryBank) Approve(owner principal.Principal, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[owner] = amount
}

func (b *MemoryBank) credit(p principal.Principal, asset ledger.AssetID, amount int64) {
	if b.balances[p] == nil {
		b.balances[p] = make(map[ledger.AssetID]int64)
	}
	b.balances[p][asset] += amount
}

func (b *MemoryBank) debit(p principal.Principal, asset ledger.AssetID, amount int64) error {
	if b.balances[p][asset] < amount {
		return ErrInsufficientFunds
	}
	b.balances[p][asset] -= amount
	return nil
}

func (b *MemoryBank) Pull(ctx context.Context, owner principal.Principal, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allowances[owner] < amount {
		return ErrInsufficientAllowance
	}
	if err := b.debit(owner, b.settlement, amount); err != nil {
		return err
	}
	b.allowances[owner] -= amount
	b.credit(b.custodian, b.settlement, amount)
	return nil
}

func (b *MemoryBank) Push(ctx context.Context, to principal.Principal, asset ledger.AssetID, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(b.custodian, asset, amount); err != nil {
		return err
	}
	b.credit(to, asset, amount)
	return nil
}

func (b *MemoryBank) Allowance(ctx context.Context, owner principal.Principal) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowances[owner], nil
}

func (b *MemoryBank) BalanceOf(ctx context.Context, p principal.Principal, asset ledger.AssetID) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[p][asset], nil
}
