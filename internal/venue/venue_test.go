package venue

import (
	"context"
	"errors"
	"testing"

	"CastVault/internal/ledger"
)

const (
	usdc  = ledger.AssetID("USDC")
	weth  = ledger.AssetID("WETH")
	degen = ledger.AssetID("DEGEN")
)

func newPool(a, b ledger.AssetID, ra, rb int64) *Pool {
	return &Pool{AssetA: a, AssetB: b, ReserveA: ra, ReserveB: rb, FeeBps: 30}
}

func TestMarketKeyIsCanonical(t *testing.T) {
	if MarketKey(usdc, degen) != MarketKey(degen, usdc) {
		t.Error("market key depends on argument order")
	}
	if MarketKey(usdc, degen) != "DEGEN/USDC" {
		t.Errorf("key = %s, want DEGEN/USDC", MarketKey(usdc, degen))
	}
}

func TestPoolSwapMovesReserves(t *testing.T) {
	reg := NewPoolRegistry()
	reg.AddPool(newPool(usdc, degen, 1_000_000, 4_000_000))

	out, err := reg.Swap(usdc, degen, usdc, 10_000, 1)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	// ~4:1 price less LP fee and slippage.
	if out <= 0 || out >= 40_000 {
		t.Errorf("out = %d, want 0 < out < 40000", out)
	}

	pool, _ := reg.PoolByKey(MarketKey(usdc, degen))
	if pool.ReserveA != 1_010_000 {
		t.Errorf("input reserve = %d, want 1010000", pool.ReserveA)
	}
	if pool.ReserveB != 4_000_000-out {
		t.Errorf("output reserve = %d, want %d", pool.ReserveB, 4_000_000-out)
	}
}

func TestSwapEnforcesMinOutWithoutMutation(t *testing.T) {
	reg := NewPoolRegistry()
	reg.AddPool(newPool(usdc, degen, 1_000_000, 4_000_000))

	if _, err := reg.Swap(usdc, degen, usdc, 10_000, 50_000); err == nil {
		t.Fatal("expected min-out failure")
	}

	pool, _ := reg.PoolByKey(MarketKey(usdc, degen))
	if pool.ReserveA != 1_000_000 || pool.ReserveB != 4_000_000 {
		t.Error("failed swap mutated reserves")
	}
}

func TestPooledVenueRequiresDirectMarket(t *testing.T) {
	reg := NewPoolRegistry()
	reg.AddPool(newPool(usdc, weth, 1_000_000, 500))
	v := NewPooledVenue(reg)

	if _, err := v.TrySwap(context.Background(), usdc, degen, 100, 1); !errors.Is(err, ErrNoMarket) {
		t.Fatalf("got %v, want ErrNoMarket", err)
	}

	out, err := v.TrySwap(context.Background(), usdc, weth, 10_000, 1)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out <= 0 {
		t.Errorf("out = %d", out)
	}
}

func TestPooledVenueSwapByKey(t *testing.T) {
	reg := NewPoolRegistry()
	reg.AddPool(newPool(usdc, degen, 1_000_000, 4_000_000))
	v := NewPooledVenue(reg)

	outAsset, out, err := v.SwapByKey(context.Background(), MarketKey(usdc, degen), usdc, 10_000, 1)
	if err != nil {
		t.Fatalf("swap by key: %v", err)
	}
	if outAsset != degen || out <= 0 {
		t.Errorf("got %s/%d", outAsset, out)
	}

	if _, _, err := v.SwapByKey(context.Background(), "NOPE/NADA", usdc, 100, 1); !errors.Is(err, ErrNoMarket) {
		t.Fatalf("got %v, want ErrNoMarket", err)
	}
	if _, _, err := v.SwapByKey(context.Background(), MarketKey(usdc, degen), weth, 100, 1); !errors.Is(err, ErrNoMarket) {
		t.Fatalf("asset outside market: got %v, want ErrNoMarket", err)
	}
}

func TestPathVenueRoutesThroughIntermediate(t *testing.T) {
	reg := NewPoolRegistry()
	reg.AddPool(newPool(usdc, weth, 10_000_000, 5_000))
	reg.AddPool(newPool(weth, degen, 5_000, 20_000_000))
	v := NewPathVenue(reg, []ledger.AssetID{weth})

	out, err := v.TrySwap(context.Background(), usdc, degen, 100_000, 1)
	if err != nil {
		t.Fatalf("path swap: %v", err)
	}
	if out <= 0 {
		t.Errorf("out = %d", out)
	}

	// Both legs executed.
	first, _ := reg.PoolByKey(MarketKey(usdc, weth))
	if first.ReserveA != 10_100_000 {
		t.Errorf("first hop reserve = %d, want 10100000", first.ReserveA)
	}
}

func TestPathVenueMinOutLeavesPoolsUntouched(t *testing.T) {
	reg := NewPoolRegistry()
	reg.AddPool(newPool(usdc, weth, 10_000_000, 5_000))
	reg.AddPool(newPool(weth, degen, 5_000, 20_000_000))
	v := NewPathVenue(reg, []ledger.AssetID{weth})

	if _, err := v.TrySwap(context.Background(), usdc, degen, 100_000, 1_000_000_000); err == nil {
		t.Fatal("expected min-out failure")
	}

	first, _ := reg.PoolByKey(MarketKey(usdc, weth))
	second, _ := reg.PoolByKey(MarketKey(weth, degen))
	if first.ReserveA != 10_000_000 || second.ReserveB != 20_000_000 {
		t.Error("failed path swap mutated reserves")
	}
}

func TestPathVenueNoRoute(t *testing.T) {
	reg := NewPoolRegistry()
	reg.AddPool(newPool(usdc, weth, 1_000_000, 500))
	v := NewPathVenue(reg, []ledger.AssetID{weth})

	if _, err := v.TrySwap(context.Background(), usdc, degen, 100, 1); !errors.Is(err, ErrNoMarket) {
		t.Fatalf("got %v, want ErrNoMarket", err)
	}
}

func TestEmptyPoolDeclines(t *testing.T) {
	reg := NewPoolRegistry()
	reg.AddPool(&Pool{AssetA: usdc, AssetB: degen, FeeBps: 30})

	if _, err := reg.Swap(usdc, degen, usdc, 100, 1); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("got %v, want ErrNoLiquidity", err)
	}
}
