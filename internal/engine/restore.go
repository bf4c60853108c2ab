package engine

import (
	"fmt"

	"CastVault/internal/ledger"
	"CastVault/internal/record"
)

// Rehydrate replays the persisted log into a fresh engine on restart.
// Journals rebuild the balance book; config and admin records rebuild the
// user-config store, the access registry, and the fee recipient. Both slices
// must be in sequence order. The sequence counter advances past the highest
// replayed record.
//
// Replay happens before the engine accepts commands; outputs are not
// re-emitted and the log is not re-written.
func (e *Engine) Rehydrate(journals []ledger.Journal, envs []*record.Envelope) error {
	for _, j := range journals {
		e.tracker.ApplyJournal(j)
	}

	for _, env := range envs {
		switch p := env.Payload.(type) {
		case *record.BuyLimitChanged:
			e.configs.SetBuyLimit(p.User, p.Limit)
		case *record.SocialAmountsChanged:
			// Amounts were validated when the record was written. The limit
			// may have moved since, so replay must not re-validate: UpdateLike
			// and UpdateRecast check only the changed amount, and a later
			// limit cut leaves the other amount legitimately above it.
			e.configs.RestoreSocialAmounts(p.User, p.LikeAmount, p.RecastAmount)
		case *record.BackendAuthorized:
			if err := e.registry.Authorize(e.registry.Owner(), p.Backend); err != nil {
				return fmt.Errorf("replay authorize seq=%d: %w", env.Sequence, err)
			}
		case *record.BackendDeauthorized:
			if err := e.registry.Deauthorize(e.registry.Owner(), p.Backend); err != nil {
				return fmt.Errorf("replay deauthorize seq=%d: %w", env.Sequence, err)
			}
		case *record.OwnershipTransferred:
			if err := e.registry.TransferOwnership(p.PreviousOwner, p.NewOwner); err != nil {
				return fmt.Errorf("replay ownership transfer seq=%d: %w", env.Sequence, err)
			}
		case *record.FeeRecipientChanged:
			if err := e.fees.SetRecipient(p.NewRecipient); err != nil {
				return fmt.Errorf("replay fee recipient seq=%d: %w", env.Sequence, err)
			}
		}

		if env.Sequence >= e.sequence {
			e.sequence = env.Sequence + 1
		}
	}

	if err := e.validator.ValidateGlobalBalance(); err != nil {
		return fmt.Errorf("replayed book does not balance: %w", err)
	}

	return nil
}
