package query

import (
	"context"
	"database/sql"
	"fmt"

	"CastVault/internal/principal"
)

// Service serves reads from the projection tables. Every response carries
// as_of_sequence: the watermark of the projection worker at read time. Reads
// never touch the engine.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ClaimBalances returns all nonzero claim balances for a user.
func (s *Service) ClaimBalances(ctx context.Context, user principal.Principal) ([]ClaimBalanceResponse, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("user:%s:claims:%%", user)
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, balance
		FROM projections.balances
		WHERE account_path LIKE $1 AND balance != 0
		ORDER BY asset
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []ClaimBalanceResponse
	for rows.Next() {
		b := ClaimBalanceResponse{User: user, AsOfSequence: asOf}
		if err := rows.Scan(&b.Asset, &b.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ClaimBalance returns a user's claim balance for one asset, zero when the
// account has never been touched.
func (s *Service) ClaimBalance(ctx context.Context, user principal.Principal, asset string) (*ClaimBalanceResponse, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &ClaimBalanceResponse{User: user, Asset: asset, AsOfSequence: asOf}
	path := fmt.Sprintf("user:%s:claims:%s", user, asset)
	err = s.db.QueryRowContext(ctx, `
		SELECT balance FROM projections.balances WHERE account_path = $1
	`, path).Scan(&resp.Balance)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// UserConfig returns a user's buy limit and social amounts. Users with no
// config yet come back all zero.
func (s *Service) UserConfig(ctx context.Context, user principal.Principal) (*UserConfigResponse, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &UserConfigResponse{User: user, AsOfSequence: asOf}
	err = s.db.QueryRowContext(ctx, `
		SELECT buy_limit, like_amount, recast_amount
		FROM projections.user_configs
		WHERE user_principal = $1
	`, user.String()).Scan(&resp.BuyLimit, &resp.LikeAmount, &resp.RecastAmount)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Purchases returns a user's executed buys, newest first, with cursor
// pagination on sequence.
func (s *Service) Purchases(ctx context.Context, user principal.Principal, limit int, beforeSequence *int64) ([]PurchaseResponse, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	q := `
		SELECT sequence, output_asset, input_amount, output_amount, fee, venue, social, timestamp_us
		FROM projections.purchases
		WHERE user_principal = $1
	`
	args := []interface{}{user.String()}
	argIdx := 2

	if beforeSequence != nil {
		q += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	q += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []PurchaseResponse
	for rows.Next() {
		p := PurchaseResponse{User: user, AsOfSequence: asOf}
		if err := rows.Scan(
			&p.Sequence, &p.OutputAsset, &p.InputAmount, &p.OutputAmount,
			&p.Fee, &p.Venue, &p.Social, &p.TimestampUs,
		); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// JournalHistory returns journal entries touching a user's accounts, newest
// first, with cursor pagination on sequence. Served from the record log, not
// the projections, so it is exact.
func (s *Service) JournalHistory(ctx context.Context, user principal.Principal, limit int, beforeSequence *int64) ([]JournalEntryResponse, error) {
	prefix := fmt.Sprintf("user:%s:%%", user)

	q := `
		SELECT journal_id, batch_id, command_ref, sequence,
		       debit_account, credit_account, asset, amount, journal_type, timestamp_us
		FROM cast_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{prefix}
	argIdx := 2

	if beforeSequence != nil {
		q += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	q += fmt.Sprintf(" ORDER BY sequence DESC, journal_id LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntryResponse
	for rows.Next() {
		var e JournalEntryResponse
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.CommandRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Asset, &e.Amount,
			&e.JournalType, &e.TimestampUs,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Freshness compares the record-log head against the projection watermark.
func (s *Service) Freshness(ctx context.Context) (*Freshness, error) {
	var logSeq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM cast_log.records`).Scan(&logSeq); err != nil {
		return nil, fmt.Errorf("log head: %w", err)
	}

	f := &Freshness{ProjectionSequence: -1, LogSequence: -1}
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence, EXTRACT(EPOCH FROM NOW() - updated_at)
		FROM projections.watermark
		WHERE worker_id = 'main'
	`).Scan(&f.ProjectionSequence, &f.WatermarkAge)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	if logSeq.Valid {
		f.LogSequence = logSeq.Int64
	}
	if lag := f.LogSequence - f.ProjectionSequence; lag > 0 {
		f.Lag = lag
	}
	return f, nil
}

// VerifyIntegrity checks that the record log has no sequence gaps and that
// projected balances sum to zero per asset.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.sequence
		FROM cast_log.records r
		LEFT JOIN cast_log.records prev ON prev.sequence = r.sequence - 1
		WHERE r.sequence > 0 AND prev.sequence IS NULL
		ORDER BY r.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.SequenceGaps = append(report.SequenceGaps, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT asset, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedAsset
		if err := balanceRows.Scan(&u.Asset, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.SequenceGaps) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

func (s *Service) watermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("watermark: %w", err)
	}
	return seq, nil
}
