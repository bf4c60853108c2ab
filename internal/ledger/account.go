package ledger

import (
	"fmt"
	"strings"

	"CastVault/internal/principal"
)

// AssetID identifies a fungible asset by symbol (e.g. "USDC", "DEGEN").
// Output assets are open-ended, so the ledger keys on the symbol directly
// instead of a closed numeric registry.
type AssetID string

// AccountScope is the top-level account namespace.
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType identifies the account purpose within a scope.
type AccountSubType uint8

const (
	// User sub-types
	SubTypeClaims AccountSubType = iota

	// System sub-types
	SubTypeCustody

	// External boundary sub-types
	SubTypeExternalWallets
	SubTypeExternalVenues
	SubTypeExternalFees
)

// AccountKey is the in-memory key for balance tracking.
// EntityID is the user Principal for user-scoped accounts and zero otherwise.
type AccountKey struct {
	Scope    AccountScope
	EntityID principal.Principal
	SubType  AccountSubType
	Asset    AssetID
}

// NewClaimsAccountKey keys a user's claim balance for an asset.
func NewClaimsAccountKey(user principal.Principal, asset AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: user,
		SubType:  SubTypeClaims,
		Asset:    asset,
	}
}

// NewCustodyAccountKey keys the engine's unallocated custodial holdings of an asset.
func NewCustodyAccountKey(asset AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: SubTypeCustody,
		Asset:   asset,
	}
}

// NewExternalAccountKey keys a boundary account (user wallets, venues, fee recipient).
func NewExternalAccountKey(subType AccountSubType, asset AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		Asset:   asset,
	}
}

// AccountPath returns the string representation for storage and logging.
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s:%s", k.EntityID, k.subTypeName(), k.Asset)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), k.Asset)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), k.Asset)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeClaims:
		return "claims"
	case SubTypeCustody:
		return "custody"
	case SubTypeExternalWallets:
		return "wallets"
	case SubTypeExternalVenues:
		return "venues"
	case SubTypeExternalFees:
		return "fees"
	default:
		return "unknown"
	}
}

// ParseAccountPath reconstructs an AccountKey from its path form.
// Used when rebuilding balances from persisted projections.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 4 && parts[0] == "user" && parts[2] == "claims":
		p, err := principal.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		return NewClaimsAccountKey(p, AssetID(parts[3])), nil
	case len(parts) == 3 && parts[0] == "system" && parts[1] == "custody":
		return NewCustodyAccountKey(AssetID(parts[2])), nil
	case len(parts) == 3 && parts[0] == "external":
		var sub AccountSubType
		switch parts[1] {
		case "wallets":
			sub = SubTypeExternalWallets
		case "venues":
			sub = SubTypeExternalVenues
		case "fees":
			sub = SubTypeExternalFees
		default:
			return AccountKey{}, fmt.Errorf("account path %q: unknown external sub-type", path)
		}
		return NewExternalAccountKey(sub, AssetID(parts[2])), nil
	}
	return AccountKey{}, fmt.Errorf("account path %q: unrecognized shape", path)
}
