package routing

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"CastVault/internal/ledger"
	"CastVault/internal/observability"
)

// ErrAllRoutesFailed is returned when every venue declined or failed the swap.
// Per-venue errors are logged and counted but never surfaced to callers.
var ErrAllRoutesFailed = errors.New("all routes failed")

// ErrBelowMinOut is returned by a venue whose execution would deliver less
// than the caller's bound. The router treats it like any other venue failure.
var ErrBelowMinOut = errors.New("output below minimum")

// Venue executes a swap at a single execution site. TrySwap must either
// deliver at least minOut or fail without moving funds.
type Venue interface {
	Name() string
	TrySwap(ctx context.Context, in, out ledger.AssetID, amountIn, minOut int64) (amountOut int64, err error)
}

// Router consults venues in a fixed priority order and returns the first
// successful execution. The router moves funds only through the venues; claim
// crediting stays with the caller.
type Router struct {
	venues  []Venue
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewRouter(venues []Venue, log zerolog.Logger, metrics *observability.Metrics) *Router {
	return &Router{
		venues:  venues,
		log:     log,
		metrics: metrics,
	}
}

// Swap tries each venue in order. The first venue to deliver at least minOut
// wins; anything else (no market, no liquidity, below-bound output) falls
// through to the next venue. When the list is exhausted the caller gets the
// single aggregate ErrAllRoutesFailed.
func (r *Router) Swap(ctx context.Context, in, out ledger.AssetID, amountIn, minOut int64) (string, int64, error) {
	for i, venue := range r.venues {
		amountOut, err := venue.TrySwap(ctx, in, out, amountIn, minOut)
		if err == nil {
			r.metrics.VenueAttempts.WithLabelValues(venue.Name(), "ok").Inc()
			r.metrics.SwapOutput.WithLabelValues(venue.Name(), string(out)).Add(float64(amountOut))
			r.log.Debug().
				Str("venue", venue.Name()).
				Str("in", string(in)).
				Str("out", string(out)).
				Int64("amount_in", amountIn).
				Int64("amount_out", amountOut).
				Msg("swap executed")
			return venue.Name(), amountOut, nil
		}

		r.metrics.VenueAttempts.WithLabelValues(venue.Name(), "failed").Inc()
		if i < len(r.venues)-1 {
			r.metrics.VenueFallbacks.WithLabelValues(venue.Name()).Inc()
		}
		r.log.Debug().
			Err(err).
			Str("venue", venue.Name()).
			Str("in", string(in)).
			Str("out", string(out)).
			Int64("amount_in", amountIn).
			Msg("venue declined, trying next")
	}

	r.metrics.RoutingFailures.WithLabelValues(string(in) + "/" + string(out)).Inc()
	r.log.Warn().
		Str("in", string(in)).
		Str("out", string(out)).
		Int64("amount_in", amountIn).
		Int64("min_out", minOut).
		Msg("all venues failed")
	return "", 0, ErrAllRoutesFailed
}
