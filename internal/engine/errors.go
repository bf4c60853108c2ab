package engine

import (
	"errors"

	"CastVault/internal/access"
	"CastVault/internal/fee"
	"CastVault/internal/routing"
	"CastVault/internal/token"
	"CastVault/internal/userconfig"
)

// Engine-level sentinels. Validation and resource errors reject the command
// before any state mutation; the engine never retries on its own.
var (
	// ErrNotAuthorizedBackend is returned when a buy or swap command comes
	// from a principal outside the authorized set.
	ErrNotAuthorizedBackend = errors.New("caller is not an authorized backend")

	// ErrInternalOnly is returned when a single-venue helper is invoked by
	// anyone but the engine itself.
	ErrInternalOnly = errors.New("internal helper called externally")

	// ErrReentrancyBlocked is returned when a command enters the engine while
	// another is still executing.
	ErrReentrancyBlocked = errors.New("reentrant call blocked")

	// ErrUserLimitNotSet is returned when a buy targets a user with no limit.
	ErrUserLimitNotSet = errors.New("user buy limit not set")

	// ErrExceedsLimit is returned when a buy amount exceeds the user's limit.
	ErrExceedsLimit = errors.New("amount exceeds buy limit")

	// ErrInsufficientBalance is returned when a swap or withdrawal exceeds
	// the user's claim balance.
	ErrInsufficientBalance = errors.New("insufficient claim balance")
)

// Re-exported domain sentinels so callers can match the full taxonomy against
// one package.
var (
	ErrNotOwner                = access.ErrNotOwner
	ErrInvalidOwner            = access.ErrInvalidOwner
	ErrLikeExceedsLimit        = userconfig.ErrLikeExceedsLimit
	ErrRecastExceedsLimit      = userconfig.ErrRecastExceedsLimit
	ErrInvalidInteractionKind  = userconfig.ErrInvalidInteractionKind
	ErrInteractionAmountNotSet = userconfig.ErrInteractionAmountNotSet
	ErrAmountTooLarge          = fee.ErrAmountTooLarge
	ErrInvalidRecipient        = fee.ErrInvalidRecipient
	ErrInsufficientAllowance   = token.ErrInsufficientAllowance
	ErrAllRoutesFailed         = routing.ErrAllRoutesFailed
)

// rejectReason maps an error to a low-cardinality metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrReentrancyBlocked):
		return "reentrancy"
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotAuthorizedBackend), errors.Is(err, ErrInternalOnly):
		return "auth"
	case errors.Is(err, ErrUserLimitNotSet), errors.Is(err, ErrExceedsLimit),
		errors.Is(err, ErrLikeExceedsLimit), errors.Is(err, ErrRecastExceedsLimit),
		errors.Is(err, ErrInvalidInteractionKind), errors.Is(err, ErrInteractionAmountNotSet),
		errors.Is(err, ErrInvalidRecipient), errors.Is(err, ErrInvalidOwner),
		errors.Is(err, ErrAmountTooLarge):
		return "validation"
	case errors.Is(err, ErrInsufficientAllowance), errors.Is(err, ErrInsufficientBalance):
		return "funds"
	case errors.Is(err, ErrAllRoutesFailed):
		return "routing"
	default:
		return "internal"
	}
}
