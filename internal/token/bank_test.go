package token

import (
	"context"
	"errors"
	"testing"

	"CastVault/internal/ledger"
	"CastVault/internal/principal"
)

const usdc = ledger.AssetID("USDC")

var (
	custodian = principal.MustParse("0x00000000000000000000000000000000000000cc")
	wallet    = principal.MustParse("0x00000000000000000000000000000000000000aa")
)

func TestPullConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	bank := NewMemoryBank(usdc, custodian)
	bank.Mint(wallet, usdc, 1000)
	bank.Approve(wallet, 600)

	if err := bank.Pull(ctx, wallet, 500); err != nil {
		t.Fatalf("pull: %v", err)
	}

	if got, _ := bank.Allowance(ctx, wallet); got != 100 {
		t.Errorf("allowance = %d, want 100", got)
	}
	if got, _ := bank.BalanceOf(ctx, wallet, usdc); got != 500 {
		t.Errorf("wallet balance = %d, want 500", got)
	}
	if got, _ := bank.BalanceOf(ctx, custodian, usdc); got != 500 {
		t.Errorf("custodian balance = %d, want 500", got)
	}

	if err := bank.Pull(ctx, wallet, 200); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("got %v, want ErrInsufficientAllowance", err)
	}
}

func TestPullRequiresWalletFunds(t *testing.T) {
	bank := NewMemoryBank(usdc, custodian)
	bank.Approve(wallet, 1000)
	// Allowance set but wallet empty.
	if err := bank.Pull(context.Background(), wallet, 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
}

func TestPushPaysFromCustody(t *testing.T) {
	ctx := context.Background()
	bank := NewMemoryBank(usdc, custodian)

	if err := bank.Push(ctx, wallet, usdc, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	bank.Mint(custodian, usdc, 300)
	if err := bank.Push(ctx, wallet, usdc, 300); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got, _ := bank.BalanceOf(ctx, wallet, usdc); got != 300 {
		t.Errorf("wallet balance = %d, want 300", got)
	}
}
