package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"CastVault/internal/engine"
)

// RecordLogWriter writes records and journal entries to Postgres using
// multi-row INSERT with ON CONFLICT DO NOTHING, so replays after a crash are
// idempotent at the storage layer too.
type RecordLogWriter struct {
	db *sql.DB
}

// RecordRow represents a row in cast_log.records.
type RecordRow struct {
	Sequence       int64
	RecordType     string
	CommandType    string
	IdempotencyKey string
	Payload        []byte // JSON-encoded record payload
	TimestampUs    int64
}

// JournalRow represents a row in cast_log.journal.
type JournalRow struct {
	JournalID     string
	BatchID       string
	CommandRef    string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        int64
	JournalType   string
	TimestampUs   int64
}

func NewRecordLogWriter(db *sql.DB) *RecordLogWriter {
	return &RecordLogWriter{db: db}
}

// RowsFromOutput converts one engine output into its storage rows.
func RowsFromOutput(out engine.Output) (RecordRow, []JournalRow, error) {
	payload, err := json.Marshal(out.Envelope.Payload)
	if err != nil {
		return RecordRow{}, nil, fmt.Errorf("marshal record payload: %w", err)
	}

	row := RecordRow{
		Sequence:       out.Envelope.Sequence,
		RecordType:     out.Envelope.Type.String(),
		CommandType:    out.CommandKind,
		IdempotencyKey: out.Envelope.IdempotencyKey,
		Payload:        payload,
		TimestampUs:    out.Envelope.Timestamp.UnixMicro(),
	}

	var journals []JournalRow
	if out.Batch != nil {
		journals = make([]JournalRow, 0, len(out.Batch.Journals))
		for _, j := range out.Batch.Journals {
			journals = append(journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				CommandRef:    j.CommandRef,
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Asset:         string(j.Asset),
				Amount:        j.Amount,
				JournalType:   j.JournalType.String(),
				TimestampUs:   j.Timestamp,
			})
		}
	}

	return row, journals, nil
}

// WriteRecordBatch writes a batch of records inside the given transaction.
func (w *RecordLogWriter) WriteRecordBatch(ctx context.Context, tx *sql.Tx, records []RecordRow) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO cast_log.records
		(sequence, record_type, command_type, idempotency_key, payload, timestamp_us)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*6)

	for i, r := range records {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			r.Sequence, r.RecordType, r.CommandType, r.IdempotencyKey,
			r.Payload, r.TimestampUs,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries inside the given transaction.
func (w *RecordLogWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO cast_log.journal
		(journal_id, batch_id, command_ref, sequence, debit_account, credit_account, asset, amount, journal_type, timestamp_us)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*10)

	for i, j := range journals {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.CommandRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Asset, j.Amount,
			j.JournalType, j.TimestampUs,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
