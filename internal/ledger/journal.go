package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypePurchasePull JournalType = iota // settlement pulled from user wallet into custody
	JournalTypeFeeCollect                      // protocol fee paid out of custody
	JournalTypeSwapOut                         // input leg handed to an execution venue
	JournalTypeSwapIn                          // output leg received from an execution venue
	JournalTypeClaimCredit                     // custody allocated to a user's claim balance
	JournalTypeClaimDebit                      // user claim released back to custody
	JournalTypeWithdrawal                      // custody paid out to a user wallet
)

func (t JournalType) String() string {
	switch t {
	case JournalTypePurchasePull:
		return "purchase_pull"
	case JournalTypeFeeCollect:
		return "fee_collect"
	case JournalTypeSwapOut:
		return "swap_out"
	case JournalTypeSwapIn:
		return "swap_in"
	case JournalTypeClaimCredit:
		return "claim_credit"
	case JournalTypeClaimDebit:
		return "claim_debit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries applied atomically
	CommandRef    string      // Idempotency key of source command
	Sequence      int64       // Global command sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Asset         AssetID     // Asset being moved
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Command timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries for one command.
type Batch struct {
	BatchID    uuid.UUID
	CommandRef string
	Sequence   int64
	Timestamp  int64
	Journals   []Journal
}

// Validate ensures the batch is well-formed.
// Each journal entry is a balanced transfer by construction: a single positive
// amount moves from the credit account to the debit account, so Σ debits ==
// Σ credits holds per entry. Multi-leg commands (purchase with fee and swap)
// append multiple entries under one batch_id, each individually balanced.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.Asset != j.Asset || j.CreditAccount.Asset != j.Asset {
			return fmt.Errorf("journal %s moves %s between accounts keyed to another asset", j.JournalID, j.Asset)
		}
	}

	return nil
}
