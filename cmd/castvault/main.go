package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"CastVault/internal/access"
	"CastVault/internal/config"
	"CastVault/internal/engine"
	"CastVault/internal/fee"
	"CastVault/internal/ingestion"
	"CastVault/internal/ledger"
	"CastVault/internal/observability"
	"CastVault/internal/persistence"
	"CastVault/internal/principal"
	"CastVault/internal/projection"
	"CastVault/internal/query"
	"CastVault/internal/record"
	"CastVault/internal/routing"
	"CastVault/internal/server"
	"CastVault/internal/token"
	"CastVault/internal/userconfig"
	"CastVault/internal/venue"
)

const (
	replayBatchSize = 1000
	lruWarmLimit    = 100_000
)

func main() {
	configPath := flag.String("config", "castvault.toml", "path to TOML config file")
	flag.Parse()

	log := observability.NewLogger("castvault")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	owner := principal.MustParse(cfg.Engine.Owner)
	feeRecipient := principal.MustParse(cfg.Engine.FeeRecipient)
	custodian := principal.MustParse(cfg.Engine.Custodian)
	settlement := ledger.AssetID(cfg.Engine.SettlementAsset)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, log)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Venues and routing ---
	// Each venue gets its own registry with its own pool copies. A later
	// venue in the route order can then fill where an earlier one declined.
	registryFor := func(name string) *venue.PoolRegistry {
		reg := venue.NewPoolRegistry()
		for _, p := range cfg.Pools {
			if !p.ServesVenue(name) {
				continue
			}
			reg.AddPool(&venue.Pool{
				AssetA:   ledger.AssetID(p.AssetA),
				AssetB:   ledger.AssetID(p.AssetB),
				ReserveA: p.ReserveA,
				ReserveB: p.ReserveB,
				FeeBps:   p.FeeBps,
			})
		}
		return reg
	}

	intermediates := make([]ledger.AssetID, 0, len(cfg.Engine.Intermediates))
	for _, a := range cfg.Engine.Intermediates {
		intermediates = append(intermediates, ledger.AssetID(a))
	}

	pooled := venue.NewPooledVenue(registryFor("pooled"))
	router := routing.NewRouter([]routing.Venue{
		pooled,
		venue.NewSingleHopVenue(registryFor("single_hop")),
		venue.NewPathVenue(registryFor("path"), intermediates),
	}, log, metrics)

	// --- Engine dependencies ---
	registry, err := access.NewRegistry(owner)
	if err != nil {
		log.Fatal().Err(err).Msg("access registry")
	}
	fees, err := fee.NewEngine(feeRecipient)
	if err != nil {
		log.Fatal().Err(err).Msg("fee engine")
	}
	configs := userconfig.NewStore()
	bank := token.NewMemoryBank(settlement, custodian)
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	persistChan := make(chan engine.Output, cfg.Persist.ChanSize)
	projectionChan := make(chan engine.Output, cfg.Persist.ProjectionChanSize)
	publishChan := make(chan *record.Envelope, cfg.Persist.PublishChanSize)

	eng := engine.New(engine.Config{
		Settlement:     settlement,
		Self:           custodian,
		Registry:       registry,
		Configs:        configs,
		Bank:           bank,
		Fees:           fees,
		Router:         router,
		Pooled:         pooled,
		DBChecker:      dbChecker,
		LRUCapacity:    cfg.Engine.LRUCapacity,
		Metrics:        metrics,
		Logger:         log,
		PersistChan:    persistChan,
		ProjectionChan: projectionChan,
	})

	// --- Recovery ---
	if err := rehydrate(ctx, db, eng, log); err != nil {
		log.Fatal().Err(err).Msg("rehydrate")
	}

	keys, err := dbChecker.RecentKeys(ctx, lruWarmLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("load recent idempotency keys")
	}
	eng.WarmLRU(keys)
	log.Info().Int("keys", len(keys)).Int64("sequence", eng.Sequence()).Msg("engine rehydrated")

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js, log); err != nil {
		log.Fatal().Err(err).Msg("ensure command streams")
	}
	if err := ingestion.EnsureRecordStream(ctx, js, log); err != nil {
		log.Fatal().Err(err).Msg("ensure record stream")
	}

	commandChan := make(chan ingestion.RawCommand, 4096)
	subscriber := ingestion.NewCommandSubscriber(js, commandChan, log)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	publisher := ingestion.NewRecordPublisher(js, publishChan, log)

	// --- Workers ---
	persistWorker := persistence.NewWorker(db, persistChan, publishChan,
		cfg.Persist.BatchSize, cfg.Persist.FlushTimeout.Std(), metrics, log)
	projectionWorker := projection.NewWorker(db, projectionChan, metrics, log)

	// --- Read API ---
	httpServer := server.NewHTTPServer(cfg.HTTP.Addr, &server.Deps{
		DB:            db,
		Query:         query.NewService(db),
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        log,
	})

	errChan := make(chan error, 8)
	go func() { errChan <- persistWorker.Run(ctx) }()
	go func() { errChan <- projectionWorker.Run(ctx) }()
	go func() { errChan <- publisher.Run(ctx) }()
	go func() { errChan <- httpServer.Start(ctx) }()
	go runEngineLoop(ctx, commandChan, eng, metrics, log)

	healthChecker.SetReady(true)
	log.Info().
		Int64("sequence", eng.Sequence()).
		Str("http", cfg.HTTP.Addr).
		Str("nats", cfg.NATS.URL).
		Msg("castvault ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("worker failed, shutting down")
	}

	subscriber.Stop()
	cancel()

	// Workers flush on cancellation; give them time to drain.
	time.Sleep(2 * time.Second)
	log.Info().Msg("shutdown complete")
}

// runEngineLoop feeds parsed commands to the engine one at a time. Ack comes
// after Execute returns: rejections are final decisions, not redelivery
// candidates, and duplicates are absorbed by the idempotency check.
func runEngineLoop(ctx context.Context, commandChan <-chan ingestion.RawCommand, eng *engine.Engine, metrics *observability.Metrics, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-commandChan:
			if !ok {
				return
			}

			metrics.NATSPullLatency.WithLabelValues(raw.Subject).Observe(time.Since(raw.Received).Seconds())

			cmd, err := ingestion.ParseRawCommand(raw)
			if err != nil {
				// Malformed payloads are acked so they don't redeliver forever.
				log.Warn().Err(err).Str("subject", raw.Subject).Msg("drop unparseable command")
				raw.AckFunc()
				continue
			}

			if err := eng.Execute(ctx, cmd); err != nil {
				log.Debug().Err(err).
					Str("command", cmd.Kind().String()).
					Str("key", cmd.IdempotencyKey()).
					Msg("command rejected")
			}
			raw.AckFunc()
		}
	}
}

// rehydrate replays the persisted log into the engine: journals first to
// rebuild the book, then record envelopes for config and access state.
func rehydrate(ctx context.Context, db *sql.DB, eng *engine.Engine, log zerolog.Logger) error {
	rec := persistence.NewRecovery(db)

	latest, err := rec.LatestSequence(ctx)
	if err != nil {
		return err
	}
	if latest < 0 {
		log.Info().Msg("empty record log, cold start")
		return nil
	}

	var journalCount int
	for from := int64(0); from <= latest; from += replayBatchSize {
		journals, err := rec.LoadJournals(ctx, from, from+replayBatchSize)
		if err != nil {
			return fmt.Errorf("load journals from %d: %w", from, err)
		}
		if len(journals) == 0 {
			continue
		}
		if err := eng.Rehydrate(journals, nil); err != nil {
			return err
		}
		journalCount += len(journals)
	}

	var recordCount int
	for from := int64(0); from <= latest; from += replayBatchSize {
		envs, err := rec.LoadEnvelopes(ctx, from, from+replayBatchSize)
		if err != nil {
			return fmt.Errorf("load records from %d: %w", from, err)
		}
		if len(envs) == 0 {
			continue
		}
		if err := eng.Rehydrate(nil, envs); err != nil {
			return err
		}
		recordCount += len(envs)
	}

	log.Info().
		Int("journals", journalCount).
		Int("records", recordCount).
		Int64("log_head", latest).
		Msg("replayed record log")
	return nil
}
