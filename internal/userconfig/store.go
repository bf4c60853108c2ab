package userconfig

import (
	"errors"

	"CastVault/internal/principal"
)

var (
	// ErrLikeExceedsLimit is returned when a like amount is set above the buy limit.
	ErrLikeExceedsLimit = errors.New("like amount exceeds buy limit")
	// ErrRecastExceedsLimit is returned when a recast amount is set above the buy limit.
	ErrRecastExceedsLimit = errors.New("recast amount exceeds buy limit")
	// ErrInvalidInteractionKind is returned for any interaction tag other than like or recast.
	ErrInvalidInteractionKind = errors.New("invalid interaction kind")
	// ErrInteractionAmountNotSet is returned when a social buy targets an interaction configured to zero.
	ErrInteractionAmountNotSet = errors.New("interaction amount not set")
)

// Interaction tags the social event kind that sizes a buy.
type Interaction uint8

const (
	InteractionLike   Interaction = 1
	InteractionRecast Interaction = 2
)

// Config holds one user's spending configuration. Amounts are fixed-point
// settlement-asset units.
type Config struct {
	BuyLimit     int64
	LikeAmount   int64
	RecastAmount int64
}

// Store keeps per-user buy limits and social amounts.
//
// Social amounts are validated against the buy limit at write time only:
// lowering the limit afterwards does not clamp amounts already stored, and the
// buy path re-checks the limit on every purchase regardless.
type Store struct {
	configs map[principal.Principal]Config
}

func NewStore() *Store {
	return &Store{
		configs: make(map[principal.Principal]Config),
	}
}

// Get returns the user's config. Absent users read as the zero config.
func (s *Store) Get(user principal.Principal) Config {
	return s.configs[user]
}

// SetBuyLimit sets the per-purchase ceiling. Existing social amounts are not
// revalidated.
func (s *Store) SetBuyLimit(user principal.Principal, limit int64) {
	cfg := s.configs[user]
	cfg.BuyLimit = limit
	s.configs[user] = cfg
}

// SetSocialAmounts sets both interaction amounts atomically against the
// current limit. On any rejection neither amount changes.
func (s *Store) SetSocialAmounts(user principal.Principal, like, recast int64) error {
	cfg := s.configs[user]
	if like > cfg.BuyLimit {
		return ErrLikeExceedsLimit
	}
	if recast > cfg.BuyLimit {
		return ErrRecastExceedsLimit
	}
	cfg.LikeAmount = like
	cfg.RecastAmount = recast
	s.configs[user] = cfg
	return nil
}

// RestoreSocialAmounts sets both interaction amounts without checking the
// current limit. Partial updates validate only the changed amount at write
// time, so a replayed log can legitimately carry an amount above the limit
// in force when the record was written.
func (s *Store) RestoreSocialAmounts(user principal.Principal, like, recast int64) {
	cfg := s.configs[user]
	cfg.LikeAmount = like
	cfg.RecastAmount = recast
	s.configs[user] = cfg
}

// SetPreferences sets the limit and both social amounts in one step. The limit
// applies first, so the amounts are validated against the new limit.
func (s *Store) SetPreferences(user principal.Principal, limit, like, recast int64) error {
	prev := s.configs[user]
	s.SetBuyLimit(user, limit)
	if err := s.SetSocialAmounts(user, like, recast); err != nil {
		s.configs[user] = prev
		return err
	}
	return nil
}

// DisableSocial zeroes both interaction amounts. The buy limit is untouched.
func (s *Store) DisableSocial(user principal.Principal) {
	cfg := s.configs[user]
	cfg.LikeAmount = 0
	cfg.RecastAmount = 0
	s.configs[user] = cfg
}

// EnableSocial restores social buying by setting both amounts. Semantically
// identical to SetSocialAmounts.
func (s *Store) EnableSocial(user principal.Principal, like, recast int64) error {
	return s.SetSocialAmounts(user, like, recast)
}

// UpdateLike changes only the like amount, validated against the current limit.
func (s *Store) UpdateLike(user principal.Principal, amount int64) error {
	cfg := s.configs[user]
	if amount > cfg.BuyLimit {
		return ErrLikeExceedsLimit
	}
	cfg.LikeAmount = amount
	s.configs[user] = cfg
	return nil
}

// UpdateRecast changes only the recast amount, validated against the current limit.
func (s *Store) UpdateRecast(user principal.Principal, amount int64) error {
	cfg := s.configs[user]
	if amount > cfg.BuyLimit {
		return ErrRecastExceedsLimit
	}
	cfg.RecastAmount = amount
	s.configs[user] = cfg
	return nil
}

// AmountFor resolves the buy size for an interaction.
func (s *Store) AmountFor(user principal.Principal, kind Interaction) (int64, error) {
	cfg := s.configs[user]
	var amount int64
	switch kind {
	case InteractionLike:
		amount = cfg.LikeAmount
	case InteractionRecast:
		amount = cfg.RecastAmount
	default:
		return 0, ErrInvalidInteractionKind
	}
	if amount == 0 {
		return 0, ErrInteractionAmountNotSet
	}
	return amount, nil
}

// IsReady reports whether social buys can execute for the user right now:
// a nonzero limit, enough allowance to cover one maximal buy, and at least one
// interaction amount configured. Advisory only; entry points re-check each
// condition themselves.
func (s *Store) IsReady(user principal.Principal, allowance int64) bool {
	cfg := s.configs[user]
	if cfg.BuyLimit <= 0 {
		return false
	}
	if allowance < cfg.BuyLimit {
		return false
	}
	return cfg.LikeAmount > 0 || cfg.RecastAmount > 0
}
