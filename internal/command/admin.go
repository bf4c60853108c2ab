package command

import (
	"time"

	"github.com/google/uuid"

	"CastVault/internal/ledger"
	"CastVault/internal/principal"
)

// AuthorizeBackend adds a backend to the authorized set. Owner only.
type AuthorizeBackend struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	Backend   principal.Principal
	Timestamp time.Time
}

func (c *AuthorizeBackend) IdempotencyKey() string { return c.CommandID.String() }
func (c *AuthorizeBackend) Kind() Kind { return KindAuthorizeBackend }
func (c *AuthorizeBackend) CallerID() principal.Principal { return c.Caller }
func (c *AuthorizeBackend) Time() time.Time { return c.Timestamp }

// DeauthorizeBackend removes a backend. Owner only; takes effect on the next command.
type DeauthorizeBackend struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	Backend   principal.Principal
	Timestamp time.Time
}

func (c *DeauthorizeBackend) IdempotencyKey() string { return c.CommandID.String() }
func (c *DeauthorizeBackend) Kind() Kind { return KindDeauthorizeBackend }
func (c *DeauthorizeBackend) CallerID() principal.Principal { return c.Caller }
func (c *DeauthorizeBackend) Time() time.Time { return c.Timestamp }

// TransferOwnership hands the owner role to a new principal, effective immediately.
type TransferOwnership struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	NewOwner  principal.Principal
	Timestamp time.Time
}

func (c *TransferOwnership) IdempotencyKey() string { return c.CommandID.String() }
func (c *TransferOwnership) Kind() Kind { return KindTransferOwnership }
func (c *TransferOwnership) CallerID() principal.Principal { return c.Caller }
func (c *TransferOwnership) Time() time.Time { return c.Timestamp }

// SetFeeRecipient changes where protocol fees are paid. Owner only.
type SetFeeRecipient struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	Recipient principal.Principal
	Timestamp time.Time
}

func (c *SetFeeRecipient) IdempotencyKey() string { return c.CommandID.String() }
func (c *SetFeeRecipient) Kind() Kind { return KindSetFeeRecipient }
func (c *SetFeeRecipient) CallerID() principal.Principal { return c.Caller }
func (c *SetFeeRecipient) Time() time.Time { return c.Timestamp }

// SweepFees pays the vault's settlement-token surplus, wallet balance above
// what backs user settlement claims, to the fee recipient. Owner only.
type SweepFees struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	Timestamp time.Time
}

func (c *SweepFees) IdempotencyKey() string { return c.CommandID.String() }
func (c *SweepFees) Kind() Kind { return KindSweepFees }
func (c *SweepFees) CallerID() principal.Principal { return c.Caller }
func (c *SweepFees) Time() time.Time { return c.Timestamp }

// EmergencyWithdraw drains an amount of one asset from the vault's wallet to
// the owner. Owner only; a recovery escape hatch that may leave user claims
// unbacked until topped up out of band.
type EmergencyWithdraw struct {
	CommandID uuid.UUID
	Caller    principal.Principal
	Asset     ledger.AssetID
	Amount    int64
	Timestamp time.Time
}

func (c *EmergencyWithdraw) IdempotencyKey() string { return c.CommandID.String() }
func (c *EmergencyWithdraw) Kind() Kind { return KindEmergencyWithdraw }
func (c *EmergencyWithdraw) CallerID() principal.Principal { return c.Caller }
func (c *EmergencyWithdraw) Time() time.Time { return c.Timestamp }
