package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CastVault/internal/engine"
	"CastVault/internal/observability"
	"CastVault/internal/record"
)

// Worker updates projection tables from committed engine outputs. The
// projection channel is non-blocking with drop on the engine side: if this
// worker falls behind, queries go stale and the tables are rebuilt from the
// record log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan engine.Output
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan engine.Output, metrics *observability.Metrics, log zerolog.Logger) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       log,
	}
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := w.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent; a failed update is
				// repaired by Rebuild, never by stalling the engine.
				w.log.Warn().Err(err).Int64("sequence", output.Envelope.Sequence).Msg("projection update failed")
			}
			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues("all").Observe(time.Since(start).Seconds())
				w.metrics.SetChannelMetrics("projection", len(w.inputChan), cap(w.inputChan))
			}
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output engine.Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := w.updateBalance(ctx, tx, j.DebitAccount.AccountPath(), string(j.Asset), j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
			if err := w.updateBalance(ctx, tx, j.CreditAccount.AccountPath(), string(j.Asset), -j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}

	switch p := output.Envelope.Payload.(type) {
	case *record.PurchaseExecuted:
		if err := w.insertPurchase(ctx, tx, seq, output.Envelope.Timestamp.UnixMicro(), p); err != nil {
			return fmt.Errorf("purchase projection: %w", err)
		}
	case *record.BuyLimitChanged:
		if err := w.upsertConfigLimit(ctx, tx, p, seq); err != nil {
			return fmt.Errorf("config projection: %w", err)
		}
	case *record.SocialAmountsChanged:
		if err := w.upsertConfigAmounts(ctx, tx, p, seq); err != nil {
			return fmt.Errorf("config projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalance applies one side of a journal entry. Debits increase the
// account balance, credits decrease it, matching the in-memory book.
func (w *Worker) updateBalance(ctx context.Context, tx *sql.Tx, accountPath, asset string, delta, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, accountPath, asset, delta, seq)
	return err
}

func (w *Worker) insertPurchase(ctx context.Context, tx *sql.Tx, seq, timestampUs int64, p *record.PurchaseExecuted) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.purchases
			(sequence, user_principal, output_asset, input_amount, output_amount, fee, venue, social, timestamp_us)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sequence) DO NOTHING
	`, seq, p.User.String(), string(p.OutputAsset), p.InputAmount, p.OutputAmount, p.Fee, p.Venue, p.Social, timestampUs)
	return err
}

func (w *Worker) upsertConfigLimit(ctx context.Context, tx *sql.Tx, p *record.BuyLimitChanged, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.user_configs (user_principal, buy_limit, like_amount, recast_amount, last_sequence)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (user_principal)
		DO UPDATE SET buy_limit = $2, last_sequence = $3
	`, p.User.String(), p.Limit, seq)
	return err
}

func (w *Worker) upsertConfigAmounts(ctx context.Context, tx *sql.Tx, p *record.SocialAmountsChanged, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.user_configs (user_principal, buy_limit, like_amount, recast_amount, last_sequence)
		VALUES ($1, 0, $2, $3, $4)
		ON CONFLICT (user_principal)
		DO UPDATE SET like_amount = $2, recast_amount = $3, last_sequence = $4
	`, p.User.String(), p.LikeAmount, p.RecastAmount, seq)
	return err
}
