package query

import "CastVault/internal/principal"

// ClaimBalanceResponse is one user claim balance. AsOfSequence is the
// projection watermark at read time, so callers can judge freshness against
// the record log head.
type ClaimBalanceResponse struct {
	User         principal.Principal `json:"user"`
	Asset        string              `json:"asset"`
	Balance      int64               `json:"balance"`
	AsOfSequence int64               `json:"as_of_sequence"`
}

// UserConfigResponse is a user's buy limit and social interaction amounts.
type UserConfigResponse struct {
	User         principal.Principal `json:"user"`
	BuyLimit     int64               `json:"buy_limit"`
	LikeAmount   int64               `json:"like_amount"`
	RecastAmount int64               `json:"recast_amount"`
	AsOfSequence int64               `json:"as_of_sequence"`
}

// PurchaseResponse is one executed buy.
type PurchaseResponse struct {
	Sequence     int64               `json:"sequence"`
	User         principal.Principal `json:"user"`
	OutputAsset  string              `json:"output_asset"`
	InputAmount  int64               `json:"input_amount"`
	OutputAmount int64               `json:"output_amount"`
	Fee          int64               `json:"fee"`
	Venue        string              `json:"venue"`
	Social       bool                `json:"social"`
	TimestampUs  int64               `json:"timestamp_us"`
	AsOfSequence int64               `json:"as_of_sequence"`
}

// JournalEntryResponse is one journal entry from the persisted log.
type JournalEntryResponse struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	CommandRef    string `json:"command_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Asset         string `json:"asset"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	TimestampUs   int64  `json:"timestamp_us"`
}

// Freshness reports how far the projections trail the record log.
type Freshness struct {
	LogSequence        int64   `json:"log_sequence"`
	ProjectionSequence int64   `json:"projection_sequence"`
	Lag                int64   `json:"lag"`
	WatermarkAge       float64 `json:"watermark_age_seconds"`
}

// IntegrityReport is the result of an integrity check over the persisted log
// and projections.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	SequenceGaps     []int64           `json:"sequence_gaps,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset is an asset whose projected balances do not sum to zero.
type UnbalancedAsset struct {
	Asset     string `json:"asset"`
	Imbalance int64  `json:"imbalance"`
}
