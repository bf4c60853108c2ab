package command

import (
	"time"

	"github.com/google/uuid"

	"CastVault/internal/ledger"
	"CastVault/internal/principal"
)

// Withdraw releases part of the caller's own claim balance to their wallet.
type Withdraw struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	Asset     ledger.AssetID
	Amount    int64
	Timestamp time.Time
}

func (c *Withdraw) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *Withdraw) Kind() Kind {
	return KindWithdraw
}

func (c *Withdraw) CallerID() principal.Principal {
	return c.Caller
}

func (c *Withdraw) Time() time.Time {
	return c.Timestamp
}
