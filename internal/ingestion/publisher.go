package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CastVault/internal/record"
)

// RecordPublisher publishes committed records to NATS for downstream
// consumers. Records are published only after persistence has confirmed them,
// so a subscriber never sees a record the log could lose.
// Subjects follow the pattern cast.records.{record_type}.
type RecordPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan *record.Envelope
	log       zerolog.Logger
}

func NewRecordPublisher(js jetstream.JetStream, inputChan <-chan *record.Envelope, log zerolog.Logger) *RecordPublisher {
	return &RecordPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the publisher loop.
func (rp *RecordPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-rp.inputChan:
			if !ok {
				return nil
			}

			if err := rp.publish(ctx, env); err != nil {
				// Non-fatal: downstream consumers can read the record log directly.
				rp.log.Warn().Err(err).Int64("sequence", env.Sequence).Msg("record publish failed")
			}
		}
	}
}

func (rp *RecordPublisher) publish(ctx context.Context, env *record.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	subject := fmt.Sprintf("cast.records.%s", env.Type.Subject())
	_, err = rp.js.Publish(ctx, subject, data)
	return err
}

// EnsureRecordStream creates the outbound record stream.
func EnsureRecordStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CAST_RECORDS",
		Subjects:  []string{"cast.records.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create record stream: %w", err)
	}
	log.Info().Str("stream", "CAST_RECORDS").Msg("ensured stream")
	return nil
}
