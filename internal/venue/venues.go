package venue

import (
	"context"
	"fmt"

	"CastVault/internal/ledger"
)

// PooledVenue executes against a direct pool only. It is consulted first and
// declines immediately when the pair has no market.
type PooledVenue struct {
	registry *PoolRegistry
}

func NewPooledVenue(registry *PoolRegistry) *PooledVenue {
	return &PooledVenue{registry: registry}
}

func (v *PooledVenue) Name() string { return "pooled" }

func (v *PooledVenue) TrySwap(ctx context.Context, in, out ledger.AssetID, amountIn, minOut int64) (int64, error) {
	if !v.registry.MarketExists(in, out) {
		return 0, fmt.Errorf("%w: %s", ErrNoMarket, MarketKey(in, out))
	}
	return v.registry.Swap(in, out, in, amountIn, minOut)
}

// SwapByKey executes directly against a named market, for user-initiated
// pooled swaps. Returns the output asset alongside the amount.
func (v *PooledVenue) SwapByKey(ctx context.Context, marketKey string, in ledger.AssetID, amountIn, minOut int64) (ledger.AssetID, int64, error) {
	pool, ok := v.registry.PoolByKey(marketKey)
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrNoMarket, marketKey)
	}
	var out ledger.AssetID
	switch in {
	case pool.AssetA:
		out = pool.AssetB
	case pool.AssetB:
		out = pool.AssetA
	default:
		return "", 0, fmt.Errorf("%w: %s not in %s", ErrNoMarket, in, marketKey)
	}
	amountOut, err := v.registry.Swap(pool.AssetA, pool.AssetB, in, amountIn, minOut)
	if err != nil {
		return "", 0, err
	}
	return out, amountOut, nil
}

// SingleHopVenue executes one direct swap through an aggregated router's own
// pool set. Unlike the pooled venue it carries its own liquidity and has no
// market precheck; a missing pool is just a failed attempt.
type SingleHopVenue struct {
	registry *PoolRegistry
}

func NewSingleHopVenue(registry *PoolRegistry) *SingleHopVenue {
	return &SingleHopVenue{registry: registry}
}

func (v *SingleHopVenue) Name() string { return "single_hop" }

func (v *SingleHopVenue) TrySwap(ctx context.Context, in, out ledger.AssetID, amountIn, minOut int64) (int64, error) {
	return v.registry.Swap(in, out, in, amountIn, minOut)
}

// PathVenue walks multi-hop routes through configured intermediate assets.
// The direct pair is tried first; otherwise each in→mid→out path is quoted
// end to end and executed only when the final output clears minOut, so a
// failing second hop never strands funds in the intermediate asset.
type PathVenue struct {
	registry      *PoolRegistry
	intermediates []ledger.AssetID
}

func NewPathVenue(registry *PoolRegistry, intermediates []ledger.AssetID) *PathVenue {
	return &PathVenue{registry: registry, intermediates: intermediates}
}

func (v *PathVenue) Name() string { return "path" }

func (v *PathVenue) TrySwap(ctx context.Context, in, out ledger.AssetID, amountIn, minOut int64) (int64, error) {
	if v.registry.MarketExists(in, out) {
		return v.registry.Swap(in, out, in, amountIn, minOut)
	}

	for _, mid := range v.intermediates {
		if mid == in || mid == out {
			continue
		}
		midOut, err := v.registry.Quote(in, mid, in, amountIn)
		if err != nil {
			continue
		}
		finalOut, err := v.registry.Quote(mid, out, mid, midOut)
		if err != nil || finalOut < minOut {
			continue
		}

		// Both hops quoted above the bound; execute them.
		midOut, err = v.registry.Swap(in, mid, in, amountIn, 0)
		if err != nil {
			continue
		}
		finalOut, err = v.registry.Swap(mid, out, mid, midOut, minOut)
		if err != nil {
			// Quoting succeeded but execution failed; nothing else touched
			// this registry in between (single-threaded engine), so treat as
			// unreachable corruption rather than unwinding the first hop.
			return 0, fmt.Errorf("path execution diverged from quote: %w", err)
		}
		return finalOut, nil
	}

	return 0, fmt.Errorf("%w: no path from %s to %s", ErrNoMarket, in, out)
}
