package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"CastVault/internal/engine"
	"CastVault/internal/observability"
	"CastVault/internal/record"
)

// Worker drains the persist channel and batch-writes to Postgres. It runs
// independently from the engine loop; the persist channel uses BLOCKING sends
// from the engine, so if this worker falls behind, the engine stalls and no
// record is ever lost.
//
// After a batch commits, its envelopes are forwarded to the publish channel
// (non-blocking with drop): downstream subscribers only ever see records the
// log already holds.
type Worker struct {
	writer       *RecordLogWriter
	inputChan    <-chan engine.Output
	publishChan  chan<- *record.Envelope
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan engine.Output,
	publishChan chan<- *record.Envelope,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewRecordLogWriter(db),
		inputChan:    inputChan,
		publishChan:  publishChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run starts the worker loop. It batches incoming outputs and flushes either
// when the batch is full or the flush timeout expires. Blocks until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	recordBatch := make([]RecordRow, 0, w.batchSize)
	journalBatch := make([]JournalRow, 0, w.batchSize*5) // up to 5 journals per purchase
	envelopeBatch := make([]*record.Envelope, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	flush := func(flushCtx context.Context) {
		if len(recordBatch) == 0 {
			return
		}
		if err := w.flushWithRetry(flushCtx, recordBatch, journalBatch); err != nil {
			w.log.Error().Err(err).Msg("batch flush failed after retries")
		} else {
			w.forward(envelopeBatch)
		}
		recordBatch = recordBatch[:0]
		journalBatch = journalBatch[:0]
		envelopeBatch = envelopeBatch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining with a background context.
			flush(context.Background())
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				flush(context.Background())
				return nil
			}

			row, journals, err := RowsFromOutput(output)
			if err != nil {
				// Unserializable payloads mean a code bug; there is no
				// recovery that preserves the log.
				w.log.Error().Err(err).Int64("sequence", output.Envelope.Sequence).Msg("drop unserializable output")
				continue
			}
			recordBatch = append(recordBatch, row)
			journalBatch = append(journalBatch, journals...)
			envelopeBatch = append(envelopeBatch, output.Envelope)

			if w.metrics != nil {
				w.metrics.SetChannelMetrics("persist", len(w.inputChan), cap(w.inputChan))
			}

			if len(recordBatch) >= w.batchSize {
				flush(ctx)
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			flush(ctx)
			timer.Reset(w.flushTimeout)
		}
	}
}

// forward hands committed envelopes to the publisher. Non-blocking: the
// publish channel is best-effort, consumers can read the log directly.
func (w *Worker) forward(envs []*record.Envelope) {
	if w.publishChan == nil {
		return
	}
	for _, env := range envs {
		select {
		case w.publishChan <- env:
		default:
			if w.metrics != nil {
				w.metrics.PublishDrops.Inc()
			}
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker never
// drops a batch: it retries until the write succeeds or, on shutdown, makes
// one final attempt with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, records []RecordRow, journals []JournalRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("records", len(records)).Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				return w.flush(context.Background(), records, journals)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, records, journals)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}
	}
}

func (w *Worker) flush(ctx context.Context, records []RecordRow, journals []JournalRow) error {
	start := time.Now()

	// Records and journals commit in one transaction.
	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteRecordBatch(ctx, tx, records); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_records").Inc()
		}
		return err
	}

	if err := w.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(records)))
		w.metrics.PersistRecordsWritten.Add(float64(len(records)))
		w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		if len(records) > 0 {
			w.metrics.PersistLastSequence.Set(float64(records[len(records)-1].Sequence))
		}
	}

	return nil
}
