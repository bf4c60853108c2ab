package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"CastVault/internal/ledger"
	"CastVault/internal/observability"
)

var testMetrics = observability.NewMetrics()

const (
	usdc  = ledger.AssetID("USDC")
	degen = ledger.AssetID("DEGEN")
)

// scriptedVenue fails n times or returns a fixed output.
type scriptedVenue struct {
	name   string
	out    int64
	err    error
	called int
}

func (v *scriptedVenue) Name() string { return v.name }

func (v *scriptedVenue) TrySwap(ctx context.Context, in, out ledger.AssetID, amountIn, minOut int64) (int64, error) {
	v.called++
	if v.err != nil {
		return 0, v.err
	}
	if v.out < minOut {
		return 0, ErrBelowMinOut
	}
	return v.out, nil
}

func newTestRouter(venues ...Venue) *Router {
	return NewRouter(venues, observability.NewLoggerWithLevel("router-test", zerolog.Disabled), testMetrics)
}

func TestFirstVenueWins(t *testing.T) {
	first := &scriptedVenue{name: "pooled", out: 100}
	second := &scriptedVenue{name: "single_hop", out: 200}
	r := newTestRouter(first, second)

	venue, out, err := r.Swap(context.Background(), usdc, degen, 50, 90)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if venue != "pooled" || out != 100 {
		t.Errorf("got %s/%d, want pooled/100", venue, out)
	}
	if second.called != 0 {
		t.Error("second venue consulted despite first success")
	}
}

func TestFallbackOnFailure(t *testing.T) {
	first := &scriptedVenue{name: "pooled", err: errors.New("no market")}
	second := &scriptedVenue{name: "single_hop", err: errors.New("no liquidity")}
	third := &scriptedVenue{name: "path", out: 77}
	r := newTestRouter(first, second, third)

	venue, out, err := r.Swap(context.Background(), usdc, degen, 50, 70)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if venue != "path" || out != 77 {
		t.Errorf("got %s/%d, want path/77", venue, out)
	}
	if first.called != 1 || second.called != 1 {
		t.Error("earlier venues not each tried exactly once")
	}
}

func TestBelowMinOutTriggersFallback(t *testing.T) {
	// First venue has output but below the bound; the bound is a venue
	// failure, not a terminal error.
	first := &scriptedVenue{name: "pooled", out: 89}
	second := &scriptedVenue{name: "single_hop", out: 95}
	r := newTestRouter(first, second)

	venue, out, err := r.Swap(context.Background(), usdc, degen, 50, 90)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if venue != "single_hop" || out != 95 {
		t.Errorf("got %s/%d, want single_hop/95", venue, out)
	}
}

func TestAllRoutesFailed(t *testing.T) {
	first := &scriptedVenue{name: "pooled", err: errors.New("no market")}
	second := &scriptedVenue{name: "single_hop", out: 10}
	r := newTestRouter(first, second)

	_, _, err := r.Swap(context.Background(), usdc, degen, 50, 90)
	if !errors.Is(err, ErrAllRoutesFailed) {
		t.Fatalf("got %v, want ErrAllRoutesFailed", err)
	}
	// Per-venue causes stay internal.
	if errors.Is(err, ErrBelowMinOut) {
		t.Error("venue-level error leaked through the aggregate")
	}
}

func TestEmptyRouterFails(t *testing.T) {
	r := newTestRouter()
	if _, _, err := r.Swap(context.Background(), usdc, degen, 1, 1); !errors.Is(err, ErrAllRoutesFailed) {
		t.Fatalf("got %v, want ErrAllRoutesFailed", err)
	}
}
