package command

import (
	"time"

	"github.com/google/uuid"

	"CastVault/internal/principal"
)

// SetBuyLimit sets the per-purchase ceiling for a user. Callable by the user
// themselves or the owner.
type SetBuyLimit struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	User      principal.Principal
	Limit     int64
	Timestamp time.Time
}

func (c *SetBuyLimit) IdempotencyKey() string { return c.CommandID.String() }
func (c *SetBuyLimit) Kind() Kind { return KindSetBuyLimit }
func (c *SetBuyLimit) CallerID() principal.Principal { return c.Caller }
func (c *SetBuyLimit) Time() time.Time { return c.Timestamp }

// SetSocialAmounts sets both interaction amounts atomically.
type SetSocialAmounts struct {
	CommandID    uuid.UUID
	Caller       principal.Principal
	User         principal.Principal
	LikeAmount   int64
	RecastAmount int64
	Timestamp    time.Time
}

func (c *SetSocialAmounts) IdempotencyKey() string { return c.CommandID.String() }
func (c *SetSocialAmounts) Kind() Kind { return KindSetSocialAmounts }
func (c *SetSocialAmounts) CallerID() principal.Principal { return c.Caller }
func (c *SetSocialAmounts) Time() time.Time { return c.Timestamp }

// SetPreferences sets the limit and both social amounts in one step.
type SetPreferences struct {
	CommandID    uuid.UUID
	Caller       principal.Principal
	User         principal.Principal
	Limit        int64
	LikeAmount   int64
	RecastAmount int64
	Timestamp    time.Time
}

func (c *SetPreferences) IdempotencyKey() string { return c.CommandID.String() }
func (c *SetPreferences) Kind() Kind { return KindSetPreferences }
func (c *SetPreferences) CallerID() principal.Principal { return c.Caller }
func (c *SetPreferences) Time() time.Time { return c.Timestamp }

// DisableSocial zeroes both interaction amounts for a user.
type DisableSocial struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	User      principal.Principal
	Timestamp time.Time
}

func (c *DisableSocial) IdempotencyKey() string { return c.CommandID.String() }
func (c *DisableSocial) Kind() Kind { return KindDisableSocial }
func (c *DisableSocial) CallerID() principal.Principal { return c.Caller }
func (c *DisableSocial) Time() time.Time { return c.Timestamp }

// UpdateLike changes only the like amount.
type UpdateLike struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	User      principal.Principal
	Amount    int64
	Timestamp time.Time
}

func (c *UpdateLike) IdempotencyKey() string { return c.CommandID.String() }
func (c *UpdateLike) Kind() Kind { return KindUpdateLike }
func (c *UpdateLike) CallerID() principal.Principal { return c.Caller }
func (c *UpdateLike) Time() time.Time { return c.Timestamp }

// UpdateRecast changes only the recast amount.
type UpdateRecast struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	User      principal.Principal
	Amount    int64
	Timestamp time.Time
}

func (c *UpdateRecast) IdempotencyKey() string { return c.CommandID.String() }
func (c *UpdateRecast) Kind() Kind { return KindUpdateRecast }
func (c *UpdateRecast) CallerID() principal.Principal { return c.Caller }
func (c *UpdateRecast) Time() time.Time { return c.Timestamp }
