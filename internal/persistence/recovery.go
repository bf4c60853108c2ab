package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CastVault/internal/ledger"
	"CastVault/internal/record"
)

// Recovery loads the persisted log for replay on restart: journal entries
// rebuild the balance book, record envelopes rebuild config and access state,
// and the highest sequence seeds the engine's counter.
type Recovery struct {
	db *sql.DB
}

func NewRecovery(db *sql.DB) *Recovery {
	return &Recovery{db: db}
}

// LatestSequence returns the highest sequence in the record log, or -1 when
// the log is empty.
func (r *Recovery) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM cast_log.records`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("latest sequence: %w", err)
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// LoadJournals returns journal entries with sequence in [from, to), in
// order. Range-based paging keeps every entry of a multi-journal batch in
// the same window.
func (r *Recovery) LoadJournals(ctx context.Context, from, to int64) ([]ledger.Journal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT journal_id, batch_id, command_ref, sequence,
		       debit_account, credit_account, asset, amount, journal_type, timestamp_us
		FROM cast_log.journal
		WHERE sequence >= $1 AND sequence < $2
		ORDER BY sequence ASC, journal_id ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("load journals: %w", err)
	}
	defer rows.Close()

	var journals []ledger.Journal
	for rows.Next() {
		var (
			journalID, batchID, debit, credit, journalType string
			j                                              ledger.Journal
		)
		if err := rows.Scan(
			&journalID, &batchID, &j.CommandRef, &j.Sequence,
			&debit, &credit, (*string)(&j.Asset), &j.Amount, &journalType, &j.Timestamp,
		); err != nil {
			return nil, err
		}

		if j.JournalID, err = uuid.Parse(journalID); err != nil {
			return nil, fmt.Errorf("parse journal_id %q: %w", journalID, err)
		}
		if j.BatchID, err = uuid.Parse(batchID); err != nil {
			return nil, fmt.Errorf("parse batch_id %q: %w", batchID, err)
		}
		if j.DebitAccount, err = ledger.ParseAccountPath(debit); err != nil {
			return nil, fmt.Errorf("parse debit account %q: %w", debit, err)
		}
		if j.CreditAccount, err = ledger.ParseAccountPath(credit); err != nil {
			return nil, fmt.Errorf("parse credit account %q: %w", credit, err)
		}
		j.JournalType = journalTypeFromString(journalType)

		journals = append(journals, j)
	}
	return journals, rows.Err()
}

// LoadEnvelopes returns record envelopes with sequence in [from, to), in order.
func (r *Recovery) LoadEnvelopes(ctx context.Context, from, to int64) ([]*record.Envelope, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence, record_type, idempotency_key, payload, timestamp_us
		FROM cast_log.records
		WHERE sequence >= $1 AND sequence < $2
		ORDER BY sequence ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var envs []*record.Envelope
	for rows.Next() {
		var (
			env         record.Envelope
			recordType  string
			payload     []byte
			timestampUs int64
		)
		if err := rows.Scan(&env.Sequence, &recordType, &env.IdempotencyKey, &payload, &timestampUs); err != nil {
			return nil, err
		}

		env.Type = recordTypeFromString(recordType)
		env.Timestamp = time.UnixMicro(timestampUs)
		if env.Payload, err = record.UnmarshalPayload(env.Type, payload); err != nil {
			return nil, fmt.Errorf("decode record seq=%d: %w", env.Sequence, err)
		}

		envs = append(envs, &env)
	}
	return envs, rows.Err()
}

func journalTypeFromString(s string) ledger.JournalType {
	for t := ledger.JournalTypePurchasePull; t <= ledger.JournalTypeWithdrawal; t++ {
		if t.String() == s {
			return t
		}
	}
	return ledger.JournalTypePurchasePull
}

func recordTypeFromString(s string) record.Type {
	for t := record.TypePurchaseExecuted; t <= record.TypeEmergencyWithdrawal; t++ {
		if t.String() == s {
			return t
		}
	}
	return record.TypeUnknown
}
