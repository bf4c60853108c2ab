package command

import (
	"time"

	"github.com/google/uuid"

	"CastVault/internal/ledger"
	"CastVault/internal/principal"
)

// DirectBuy is a backend-triggered purchase with an explicit amount.
// Idempotency key: command_id (UUID from the triggering backend).
type DirectBuy struct {
	CommandID   uuid.UUID
	Caller      principal.Principal
	User        principal.Principal
	OutputAsset ledger.AssetID
	UsdcAmount  int64 // Fixed-point settlement units
	MinOut      int64
	Timestamp   time.Time
}

func (c *DirectBuy) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *DirectBuy) Kind() Kind {
	return KindDirectBuy
}

func (c *DirectBuy) CallerID() principal.Principal {
	return c.Caller
}

func (c *DirectBuy) Time() time.Time {
	return c.Timestamp
}

// SocialBuy is a backend-triggered purchase sized by the user's configured
// amount for the interaction kind. Interaction values other than like and
// recast are rejected at apply time, not at parse time, so the rejection is
// recorded under the command's idempotency key.
type SocialBuy struct {
	CommandID   uuid.UUID
	Caller      principal.Principal
	User        principal.Principal
	OutputAsset ledger.AssetID
	Interaction uint8
	MinOut      int64
	Timestamp   time.Time
}

func (c *SocialBuy) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *SocialBuy) Kind() Kind {
	return KindSocialBuy
}

func (c *SocialBuy) CallerID() principal.Principal {
	return c.Caller
}

func (c *SocialBuy) Time() time.Time {
	return c.Timestamp
}
