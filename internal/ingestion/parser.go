package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CastVault/internal/command"
	"CastVault/internal/ledger"
	"CastVault/internal/principal"
)

// ParseRawCommand converts a RawCommand (JSON bytes + command type string)
// into a typed command.Command. The ingestion shell validates and parses
// before anything reaches the engine; a command that fails here is
// malformed and must be dropped (terminated), not redelivered.
func ParseRawCommand(raw RawCommand) (command.Command, error) {
	switch raw.CommandType {
	case "DirectBuy":
		return parseDirectBuy(raw.Data)
	case "SocialBuy":
		return parseSocialBuy(raw.Data)
	case "SmartSwap":
		return parseSmartSwap(raw.Data)
	case "PooledSwap":
		return parsePooledSwap(raw.Data)
	case "Withdraw":
		return parseWithdraw(raw.Data)
	case "SetBuyLimit":
		return parseSetBuyLimit(raw.Data)
	case "SetSocialAmounts":
		return parseSetSocialAmounts(raw.Data)
	case "SetPreferences":
		return parseSetPreferences(raw.Data)
	case "DisableSocial":
		return parseDisableSocial(raw.Data)
	case "UpdateLike":
		return parseUpdateLike(raw.Data)
	case "UpdateRecast":
		return parseUpdateRecast(raw.Data)
	case "AuthorizeBackend":
		return parseAuthorizeBackend(raw.Data)
	case "DeauthorizeBackend":
		return parseDeauthorizeBackend(raw.Data)
	case "TransferOwnership":
		return parseTransferOwnership(raw.Data)
	case "SetFeeRecipient":
		return parseSetFeeRecipient(raw.Data)
	case "SweepFees":
		return parseSweepFees(raw.Data)
	case "EmergencyWithdraw":
		return parseEmergencyWithdraw(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", raw.CommandType)
	}
}

func parseCommandID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse command_id: %w", err)
	}
	return id, nil
}

func parsePrincipal(field, s string) (principal.Principal, error) {
	p, err := principal.Parse(s)
	if err != nil {
		return principal.Zero, fmt.Errorf("parse %s: %w", field, err)
	}
	return p, nil
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Amounts are
// fixed-point integers; timestamps are epoch microseconds.

type buyJSON struct {
	CommandID   string `json:"command_id"`
	Caller      string `json:"caller"`
	User        string `json:"user"`
	OutputAsset string `json:"output_asset"`
	UsdcAmount  int64  `json:"usdc_amount"`
	Interaction uint8  `json:"interaction"`
	MinOut      int64  `json:"min_out"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDirectBuy(data []byte) (*command.DirectBuy, error) {
	var j buyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DirectBuy: %w", err)
	}
	id, err := parseCommandID(j.CommandID)
	if err != nil {
		return nil, err
	}
	caller, err := parsePrincipal("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	user, err := parsePrincipal("user", j.User)
	if err != nil {
		return nil, err
	}
	return &command.DirectBuy{
		CommandID:   id,
		Caller:      caller,
		User:        user,
		OutputAsset: ledger.AssetID(j.OutputAsset),
		UsdcAmount:  j.UsdcAmount,
		MinOut:      j.MinOut,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseSocialBuy(data []byte) (*command.SocialBuy, error) {
	var j buyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SocialBuy: %w", err)
	}
	id, err := parseCommandID(j.CommandID)
	if err != nil {
		return nil, err
	}
	caller, err := parsePrincipal("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	user, err := parsePrincipal("user", j.User)
	if err != nil {
		return nil, err
	}
	return &command.SocialBuy{
		CommandID:   id,
		Caller:      caller,
		User:        user,
		OutputAsset: ledger.AssetID(j.OutputAsset),
		Interaction: j.Interaction,
		MinOut:      j.MinOut,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type swapJSON struct {
	CommandID   string `json:"command_id"`
	Caller      string `json:"caller"`
	User        string `json:"user"`
	MarketKey   string `json:"market_key"`
	InputAsset  string `json:"input_asset"`
	OutAsset    string `json:"out_asset"`
	Amount      int64  `json:"amount"`
	MinOut      int64  `json:"min_out"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSmartSwap(data []byte) (*command.SmartSwap, error) {
	var j swapJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SmartSwap: %w", err)
	}
	id, err := parseCommandID(j.CommandID)
	if err != nil {
		return nil, err
	}
	caller, err := parsePrincipal("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	user, err := parsePrincipal("user", j.User)
	if err != nil {
		return nil, err
	}
	return &command.SmartSwap{
		CommandID:  id,
		Caller:     caller,
		User:       user,
		InputAsset: ledger.AssetID(j.InputAsset),
		OutAsset:   ledger.AssetID(j.OutAsset),
		Amount:     j.Amount,
		MinOut:     j.MinOut,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parsePooledSwap(data []byte) (*command.PooledSwap, error) {
	var j swapJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PooledSwap: %w", err)
	}
	id, err := parseCommandID(j.CommandID)
	if err != nil {
		return nil, err
	}
	caller, err := parsePrincipal("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &command.PooledSwap{
		CommandID:  id,
		Caller:     caller,
		MarketKey:  j.MarketKey,
		InputAsset: ledger.AssetID(j.InputAsset),
		Amount:     j.Amount,
		MinOut:     j.MinOut,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type withdrawJSON struct {
	CommandID   string `json:"command_id"`
	Caller      string `json:"caller"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWithdraw(data []byte) (*command.Withdraw, error) {
	var j withdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	id, err := parseCommandID(j.CommandID)
	if err != nil {
		return nil, err
	}
	caller, err := parsePrincipal("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &command.Withdraw{
		CommandID: id,
		Caller:    caller,
		Asset:     ledger.AssetID(j.Asset),
		Amount:    j.Amount,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type configJSON struct {
	CommandID    string `json:"command_id"`
	Caller       string `json:"caller"`
	User         string `json:"user"`
	Limit        int64  `json:"limit"`
	LikeAmount   int64  `json:"like_amount"`
	RecastAmount int64  `json:"recast_amount"`
	Amount       int64  `json:"amount"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseConfigCommon(data []byte, kind string) (configJSON, uuid.UUID, principal.Principal, principal.Principal, error) {
	var j configJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return j, uuid.Nil, principal.Zero, principal.Zero, fmt.Errorf("parse %s: %w", kind, err)
	}
	id, err := parseCommandID(j.CommandID)
	if err != nil {
		return j, uuid.Nil, principal.Zero, principal.Zero, err
	}
	caller, err := parsePrincipal("caller", j.Caller)
	if err != nil {
		return j, uuid.Nil, principal.Zero, principal.Zero, err
	}
	user, err := parsePrincipal("user", j.User)
	if err != nil {
		return j, uuid.Nil, principal.Zero, principal.Zero, err
	}
	return j, id, caller, user, nil
}

func parseSetBuyLimit(data []byte) (*command.SetBuyLimit, error) {
	j, id, caller, user, err := parseConfigCommon(data, "SetBuyLimit")
	if err != nil {
		return nil, err
	}
	return &command.SetBuyLimit{
		CommandID: id, Caller: caller, User: user,
		Limit:     j.Limit,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseSetSocialAmounts(data []byte) (*command.SetSocialAmounts, error) {
	j, id, caller, user, err := parseConfigCommon(data, "SetSocialAmounts")
	if err != nil {
		return nil, err
	}
	return &command.SetSocialAmounts{
		CommandID: id, Caller: caller, User: user,
		LikeAmount: j.LikeAmount, RecastAmount: j.RecastAmount,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseSetPreferences(data []byte) (*command.SetPreferences, error) {
	j, id, caller, user, err := parseConfigCommon(data, "SetPreferences")
	if err != nil {
		return nil, err
	}
	return &command.SetPreferences{
		CommandID: id, Caller: caller, User: user,
		Limit: j.Limit, LikeAmount: j.LikeAmount, RecastAmount: j.RecastAmount,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseDisableSocial(data []byte) (*command.DisableSocial, error) {
	j, id, caller, user, err := parseConfigCommon(data, "DisableSocial")
	if err != nil {
		return nil, err
	}
	return &command.DisableSocial{
		CommandID: id, Caller: caller, User: user,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseUpdateLike(data []byte) (*command.UpdateLike, error) {
	j, id, caller, user, err := parseConfigCommon(data, "UpdateLike")
	if err != nil {
		return nil, err
	}
	return &command.UpdateLike{
		CommandID: id, Caller: caller, User: user,
		Amount:    j.Amount,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseUpdateRecast(data []byte) (*command.UpdateRecast, error) {
	j, id, caller, user, err := parseConfigCommon(data, "UpdateRecast")
	if err != nil {
		return nil, err
	}
	return &command.UpdateRecast{
		CommandID: id, Caller: caller, User: user,
		Amount:    j.Amount,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type adminJSON struct {
	CommandID   string `json:"command_id"`
	Caller      string `json:"caller"`
	Backend     string `json:"backend"`
	NewOwner    string `json:"new_owner"`
	Recipient   string `json:"recipient"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAdminCommon(data []byte, kind string) (adminJSON, uuid.UUID, principal.Principal, error) {
	var j adminJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return j, uuid.Nil, principal.Zero, fmt.Errorf("parse %s: %w", kind, err)
	}
	id, err := parseCommandID(j.CommandID)
	if err != nil {
		return j, uuid.Nil, principal.Zero, err
	}
	caller, err := parsePrincipal("caller", j.Caller)
	if err != nil {
		return j, uuid.Nil, principal.Zero, err
	}
	return j, id, caller, nil
}

func parseAuthorizeBackend(data []byte) (*command.AuthorizeBackend, error) {
	j, id, caller, err := parseAdminCommon(data, "AuthorizeBackend")
	if err != nil {
		return nil, err
	}
	backend, err := parsePrincipal("backend", j.Backend)
	if err != nil {
		return nil, err
	}
	return &command.AuthorizeBackend{
		CommandID: id, Caller: caller, Backend: backend,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseDeauthorizeBackend(data []byte) (*command.DeauthorizeBackend, error) {
	j, id, caller, err := parseAdminCommon(data, "DeauthorizeBackend")
	if err != nil {
		return nil, err
	}
	backend, err := parsePrincipal("backend", j.Backend)
	if err != nil {
		return nil, err
	}
	return &command.DeauthorizeBackend{
		CommandID: id, Caller: caller, Backend: backend,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseTransferOwnership(data []byte) (*command.TransferOwnership, error) {
	j, id, caller, err := parseAdminCommon(data, "TransferOwnership")
	if err != nil {
		return nil, err
	}
	newOwner, err := parsePrincipal("new_owner", j.NewOwner)
	if err != nil {
		return nil, err
	}
	return &command.TransferOwnership{
		CommandID: id, Caller: caller, NewOwner: newOwner,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseSetFeeRecipient(data []byte) (*command.SetFeeRecipient, error) {
	j, id, caller, err := parseAdminCommon(data, "SetFeeRecipient")
	if err != nil {
		return nil, err
	}
	recipient, err := parsePrincipal("recipient", j.Recipient)
	if err != nil {
		return nil, err
	}
	return &command.SetFeeRecipient{
		CommandID: id, Caller: caller, Recipient: recipient,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseSweepFees(data []byte) (*command.SweepFees, error) {
	j, id, caller, err := parseAdminCommon(data, "SweepFees")
	if err != nil {
		return nil, err
	}
	return &command.SweepFees{
		CommandID: id, Caller: caller,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseEmergencyWithdraw(data []byte) (*command.EmergencyWithdraw, error) {
	j, id, caller, err := parseAdminCommon(data, "EmergencyWithdraw")
	if err != nil {
		return nil, err
	}
	return &command.EmergencyWithdraw{
		CommandID: id, Caller: caller,
		Asset:     ledger.AssetID(j.Asset),
		Amount:    j.Amount,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
