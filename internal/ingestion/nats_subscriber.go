package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// CommandSubscriber subscribes to NATS JetStream subjects and feeds inbound
// commands into the engine loop via commandChan. Each subject maps to one
// command type so producers can scale independently.
type CommandSubscriber struct {
	js          jetstream.JetStream
	commandChan chan<- RawCommand
	consumers   []jetstream.ConsumeContext
	log         zerolog.Logger
}

// RawCommand is the received-but-untyped command from NATS, ready for the
// shell to parse into a typed command.Command before handing to the engine.
type RawCommand struct {
	Subject     string
	CommandType string
	Data        []byte
	Received    time.Time
	AckFunc     func() // ACK after the engine has committed the command
	NakFunc     func() // NAK on parse or transient failure (redelivered)
}

// SubjectConfig maps one NATS subject to a command type.
type SubjectConfig struct {
	Subject      string
	CommandType  string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject layout. Buys, swaps,
// withdrawals, config and admin traffic live in separate streams.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "cast.commands.buy.direct", CommandType: "DirectBuy", ConsumerName: "vault-buy-direct", StreamName: "CAST_BUYS"},
		{Subject: "cast.commands.buy.social", CommandType: "SocialBuy", ConsumerName: "vault-buy-social", StreamName: "CAST_BUYS"},
		{Subject: "cast.commands.swap.smart", CommandType: "SmartSwap", ConsumerName: "vault-swap-smart", StreamName: "CAST_SWAPS"},
		{Subject: "cast.commands.swap.pooled", CommandType: "PooledSwap", ConsumerName: "vault-swap-pooled", StreamName: "CAST_SWAPS"},
		{Subject: "cast.commands.withdraw", CommandType: "Withdraw", ConsumerName: "vault-withdraw", StreamName: "CAST_WITHDRAWALS"},
		{Subject: "cast.commands.config.buy_limit", CommandType: "SetBuyLimit", ConsumerName: "vault-cfg-limit", StreamName: "CAST_CONFIG"},
		{Subject: "cast.commands.config.social_amounts", CommandType: "SetSocialAmounts", ConsumerName: "vault-cfg-social", StreamName: "CAST_CONFIG"},
		{Subject: "cast.commands.config.preferences", CommandType: "SetPreferences", ConsumerName: "vault-cfg-prefs", StreamName: "CAST_CONFIG"},
		{Subject: "cast.commands.config.disable_social", CommandType: "DisableSocial", ConsumerName: "vault-cfg-disable", StreamName: "CAST_CONFIG"},
		{Subject: "cast.commands.config.update_like", CommandType: "UpdateLike", ConsumerName: "vault-cfg-like", StreamName: "CAST_CONFIG"},
		{Subject: "cast.commands.config.update_recast", CommandType: "UpdateRecast", ConsumerName: "vault-cfg-recast", StreamName: "CAST_CONFIG"},
		{Subject: "cast.commands.admin.authorize", CommandType: "AuthorizeBackend", ConsumerName: "vault-adm-auth", StreamName: "CAST_ADMIN"},
		{Subject: "cast.commands.admin.deauthorize", CommandType: "DeauthorizeBackend", ConsumerName: "vault-adm-deauth", StreamName: "CAST_ADMIN"},
		{Subject: "cast.commands.admin.transfer_ownership", CommandType: "TransferOwnership", ConsumerName: "vault-adm-owner", StreamName: "CAST_ADMIN"},
		{Subject: "cast.commands.admin.fee_recipient", CommandType: "SetFeeRecipient", ConsumerName: "vault-adm-fee", StreamName: "CAST_ADMIN"},
		{Subject: "cast.commands.admin.sweep_fees", CommandType: "SweepFees", ConsumerName: "vault-adm-sweep", StreamName: "CAST_ADMIN"},
		{Subject: "cast.commands.admin.emergency", CommandType: "EmergencyWithdraw", ConsumerName: "vault-adm-emergency", StreamName: "CAST_ADMIN"},
	}
}

func NewCommandSubscriber(js jetstream.JetStream, commandChan chan<- RawCommand, log zerolog.Logger) *CommandSubscriber {
	return &CommandSubscriber{
		js:          js,
		commandChan: commandChan,
		log:         log,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (cs *CommandSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		cfg := cfg
		consumer, err := cs.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:     msg.Subject(),
				CommandType: cfg.CommandType,
				Data:        msg.Data(),
				Received:    time.Now(),
				AckFunc:     func() { msg.Ack() },
				NakFunc:     func() { msg.Nak() },
			}

			select {
			case cs.commandChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		cs.consumers = append(cs.consumers, consumerContext)
		cs.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "CAST_BUYS",
			Subjects:  []string{"cast.commands.buy.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CAST_SWAPS",
			Subjects:  []string{"cast.commands.swap.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CAST_WITHDRAWALS",
			Subjects:  []string{"cast.commands.withdraw"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CAST_CONFIG",
			Subjects:  []string{"cast.commands.config.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CAST_ADMIN",
			Subjects:  []string{"cast.commands.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (cs *CommandSubscriber) Stop() {
	for _, cc := range cs.consumers {
		cc.Stop()
	}
	cs.log.Info().Msg("command subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
