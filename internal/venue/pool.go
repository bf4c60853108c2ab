package venue

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"CastVault/internal/ledger"
)

var (
	// ErrNoMarket is returned when no pool exists for the pair.
	ErrNoMarket = errors.New("no market for pair")
	// ErrNoLiquidity is returned when a pool cannot cover the swap.
	ErrNoLiquidity = errors.New("insufficient pool liquidity")
)

// Pool is a constant-product market between two assets. Reserves are
// fixed-point amounts; FeeBps is the pool's own LP fee, distinct from the
// protocol fee taken upstream.
type Pool struct {
	AssetA   ledger.AssetID
	AssetB   ledger.AssetID
	ReserveA int64
	ReserveB int64
	FeeBps   int64
}

// MarketKey returns the canonical pair key, smaller symbol first.
func MarketKey(a, b ledger.AssetID) string {
	s := []string{string(a), string(b)}
	sort.Strings(s)
	return s[0] + "/" + s[1]
}

// quote computes the constant-product output for amountIn of inAsset.
// The LP fee is taken on the input leg before the curve is applied.
func (p *Pool) quote(inAsset ledger.AssetID, amountIn int64) (int64, error) {
	var reserveIn, reserveOut int64
	switch inAsset {
	case p.AssetA:
		reserveIn, reserveOut = p.ReserveA, p.ReserveB
	case p.AssetB:
		reserveIn, reserveOut = p.ReserveB, p.ReserveA
	default:
		return 0, fmt.Errorf("%w: %s not in %s", ErrNoMarket, inAsset, MarketKey(p.AssetA, p.AssetB))
	}
	if reserveIn <= 0 || reserveOut <= 0 {
		return 0, ErrNoLiquidity
	}

	effectiveIn := amountIn * (10_000 - p.FeeBps) / 10_000
	if effectiveIn <= 0 {
		return 0, ErrNoLiquidity
	}

	k := reserveIn * reserveOut
	newReserveIn := reserveIn + effectiveIn
	out := reserveOut - k/newReserveIn
	if out <= 0 || out >= reserveOut {
		return 0, ErrNoLiquidity
	}
	return out, nil
}

// commit applies an executed swap to the reserves.
func (p *Pool) commit(inAsset ledger.AssetID, amountIn, amountOut int64) {
	if inAsset == p.AssetA {
		p.ReserveA += amountIn
		p.ReserveB -= amountOut
	} else {
		p.ReserveB += amountIn
		p.ReserveA -= amountOut
	}
}

// PoolRegistry holds the pools one execution venue can reach.
type PoolRegistry struct {
	mu    sync.Mutex
	pools map[string]*Pool
}

func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{
		pools: make(map[string]*Pool),
	}
}

// AddPool registers a pool, replacing any existing pool for the pair.
func (r *PoolRegistry) AddPool(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[MarketKey(p.AssetA, p.AssetB)] = p
}

// MarketExists reports whether a direct pool exists for the pair.
func (r *PoolRegistry) MarketExists(a, b ledger.AssetID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pools[MarketKey(a, b)]
	return ok
}

// PoolByKey returns the pool for a canonical market key.
func (r *PoolRegistry) PoolByKey(key string) (*Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[key]
	return p, ok
}

// Swap executes amountIn of inAsset against the pair's pool, enforcing minOut
// before any reserve mutation. Failures leave the pool untouched.
func (r *PoolRegistry) Swap(a, b ledger.AssetID, inAsset ledger.AssetID, amountIn, minOut int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[MarketKey(a, b)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoMarket, MarketKey(a, b))
	}
	out, err := pool.quote(inAsset, amountIn)
	if err != nil {
		return 0, err
	}
	if out < minOut {
		return 0, fmt.Errorf("pool %s: output %d below minimum %d", MarketKey(a, b), out, minOut)
	}
	pool.commit(inAsset, amountIn, out)
	return out, nil
}

// Quote returns the output a swap would deliver without executing it.
func (r *PoolRegistry) Quote(a, b ledger.AssetID, inAsset ledger.AssetID, amountIn int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[MarketKey(a, b)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoMarket, MarketKey(a, b))
	}
	return pool.quote(inAsset, amountIn)
}
