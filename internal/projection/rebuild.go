package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Rebuild drops and reconstructs every projection table from the record log.
// Safe to run while the log is being appended: the watermark lands on the
// highest sequence seen during the rebuild and the worker resumes from there.
func Rebuild(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"balances", "user_configs", "purchases", "watermark"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`TRUNCATE projections.%s`, table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	// Balances: debits add, credits subtract, per the book convention.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		SELECT account_path, asset, SUM(delta), MAX(sequence)
		FROM (
			SELECT debit_account AS account_path, asset, amount AS delta, sequence
			FROM cast_log.journal
			UNION ALL
			SELECT credit_account AS account_path, asset, -amount AS delta, sequence
			FROM cast_log.journal
		) sides
		GROUP BY account_path, asset
	`); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.purchases
			(sequence, user_principal, output_asset, input_amount, output_amount, fee, venue, social, timestamp_us)
		SELECT sequence,
		       payload->>'user',
		       payload->>'output_asset',
		       (payload->>'input_amount')::BIGINT,
		       (payload->>'output_amount')::BIGINT,
		       (payload->>'fee')::BIGINT,
		       payload->>'venue',
		       (payload->>'social')::BOOLEAN,
		       timestamp_us
		FROM cast_log.records
		WHERE record_type = 'PurchaseExecuted'
	`); err != nil {
		return fmt.Errorf("rebuild purchases: %w", err)
	}

	// User configs: latest limit record and latest social-amounts record per
	// user, merged. A user with only one of the two keeps zeros for the other.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.user_configs (user_principal, buy_limit, like_amount, recast_amount, last_sequence)
		SELECT COALESCE(l.user_principal, s.user_principal),
		       COALESCE(l.buy_limit, 0),
		       COALESCE(s.like_amount, 0),
		       COALESCE(s.recast_amount, 0),
		       GREATEST(COALESCE(l.sequence, 0), COALESCE(s.sequence, 0))
		FROM (
			SELECT DISTINCT ON (payload->>'user')
			       payload->>'user' AS user_principal,
			       (payload->>'limit')::BIGINT AS buy_limit,
			       sequence
			FROM cast_log.records
			WHERE record_type = 'BuyLimitChanged'
			ORDER BY payload->>'user', sequence DESC
		) l
		FULL OUTER JOIN (
			SELECT DISTINCT ON (payload->>'user')
			       payload->>'user' AS user_principal,
			       (payload->>'like_amount')::BIGINT AS like_amount,
			       (payload->>'recast_amount')::BIGINT AS recast_amount,
			       sequence
			FROM cast_log.records
			WHERE record_type = 'SocialAmountsChanged'
			ORDER BY payload->>'user', sequence DESC
		) s ON l.user_principal = s.user_principal
	`); err != nil {
		return fmt.Errorf("rebuild user configs: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		SELECT 'main', COALESCE(MAX(sequence), -1), NOW() FROM cast_log.records
	`); err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}

	log.Info().Msg("projections rebuilt from record log")
	return nil
}
