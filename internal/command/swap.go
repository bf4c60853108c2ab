package command

import (
	"time"

	"github.com/google/uuid"

	"CastVault/internal/ledger"
	"CastVault/internal/principal"
)

// SmartSwap converts part of a user's earned claim balance into another asset
// through the full venue cascade. No protocol fee.
type SmartSwap struct {
	CommandID  uuid.UUID
	Caller     principal.Principal
	User       principal.Principal
	InputAsset ledger.AssetID
	OutAsset   ledger.AssetID
	Amount     int64
	MinOut     int64
	Timestamp  time.Time
}

func (c *SmartSwap) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *SmartSwap) Kind() Kind {
	return KindSmartSwap
}

func (c *SmartSwap) CallerID() principal.Principal {
	return c.Caller
}

func (c *SmartSwap) Time() time.Time {
	return c.Timestamp
}

// PooledSwap is a user-initiated swap against one named pooled market only.
// The input asset disambiguates direction within the pair.
type PooledSwap struct {
	CommandID  uuid.UUID
	Caller     principal.Principal
	MarketKey  string
	InputAsset ledger.AssetID
	Amount     int64
	MinOut     int64
	Timestamp  time.Time
}

func (c *PooledSwap) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *PooledSwap) Kind() Kind {
	return KindPooledSwap
}

func (c *PooledSwap) CallerID() principal.Principal {
	return c.Caller
}

func (c *PooledSwap) Time() time.Time {
	return c.Timestamp
}
