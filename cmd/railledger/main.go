package main

import (
	"RailLedger/internal/core"
	"RailLedger/internal/event"
	"RailLedger/internal/ingestion"
	"RailLedger/internal/observability"
	"RailLedger/internal/persistence"
	"RailLedger/internal/server"
	"RailLedger/internal/store"
	"RailLedger/internal/tokenmeta"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	logger := observability.NewLogger("railledger")

	cfg, err := DefaultConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Info().
		Str("network", cfg.Network.Name).
		Str("source", cfg.EventSource).
		Bool("relay", cfg.Relay).
		Str("store", cfg.Store).
		Bool("resync", cfg.Resync).
		Msg("RailLedger starting")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()

	// --- Store ---
	st, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	// --- Chain RPC ---
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		logger.Fatal().Err(err).Str("rpc", cfg.RPCURL).Msg("dial rpc")
	}
	defer client.Close()
	verifyChain(ctx, client, cfg.Network, logger)

	resolver := tokenmeta.NewResolver(
		tokenmeta.NewERC20Reader(client),
		cfg.MetadataTimeout,
		observability.NewLogger("tokenmeta"),
		metrics.MetadataFallbacks,
	)

	// --- Reducer ---
	engine, err := core.NewEngine(ctx, st, resolver, observability.NewLogger("reducer"), metrics, core.Options{
		LRUCapacity: cfg.IdempotencyLRUCapacity,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("start reducer")
	}

	runID := uuid.New()
	if cfg.Resync {
		if runID, err = engine.Resync(ctx); err != nil {
			logger.Fatal().Err(err).Msg("resync")
		}
	}

	start := engine.Cursor()
	red := &reducer{engine: engine, done: make(chan struct{}), logger: observability.NewLogger("reducer")}
	red.cursor.Store(start.Block)
	if db != nil {
		red.checkpoints = core.NewCheckpointer(persistence.NewCheckpointLog(db), cfg.CheckpointInterval, runID, logger, metrics)
	}
	healthChecker.CursorFunc = red.cursor.Load

	// --- gRPC health + HTTP probes ---
	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, healthChecker, observability.NewLogger("server"))

	errChan := make(chan error, 8)

	// --- Sources ---
	var subscriber *ingestion.NATSSubscriber
	if cfg.EventSource == "nats" || cfg.Relay {
		nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()
		logger.Info().Str("url", cfg.NATSURL).Msg("NATS connected")

		if err := ingestion.EnsureStream(ctx, js, logger); err != nil {
			logger.Fatal().Err(err).Msg("ensure stream")
		}

		rawEventChan := make(chan ingestion.RawEvent, 1)
		subscriber = ingestion.NewNATSSubscriber(js, rawEventChan, observability.NewLogger("nats"), metrics)
		if err := subscriber.Subscribe(ctx, ingestion.ConsumerName(cfg.Resync)); err != nil {
			logger.Fatal().Err(err).Msg("nats subscribe")
		}
		go red.runIngestionLoop(ctx, rawEventChan)

		if cfg.Relay {
			relay := ingestion.NewRelay(js, observability.NewLogger("relay"), metrics)
			go func() {
				errChan <- runEVMSource(ctx, cfg, client, start.Block, relay.Publish, logger, metrics)
			}()
		}
	} else {
		deliveries := make(chan ingestion.Delivery)
		go red.runChainLoop(ctx, deliveries)
		go func() {
			errChan <- runEVMSource(ctx, cfg, client, start.Block, ingestion.ChannelSink(deliveries), logger, metrics)
		}()
	}

	go func() {
		errChan <- grpcServer.StartGRPC(ctx)
	}()
	go func() {
		errChan <- grpcServer.StartHTTP(ctx)
	}()
	go func() {
		errChan <- serveMetrics(ctx, cfg.MetricsAddr, logger)
	}()

	grpcServer.SetServing(true)
	logger.Info().
		Uint64("cursor_block", start.Block).
		Uint64("applied", start.Applied).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("RailLedger ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	grpcServer.SetServing(false)
	if subscriber != nil {
		subscriber.Stop()
	}
	cancel()

	// Wait for the event in flight to finish
	select {
	case <-red.done:
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("reducer did not stop in time")
	}
	logger.Info().
		Uint64("cursor_block", red.cursor.Load()).
		Msg("RailLedger shutdown complete")
}

// openStore selects the backend. db is non-nil only for postgres, which
// also carries the checkpoint log.
func openStore(ctx context.Context, cfg Config, logger zerolog.Logger) (store.Store, *sql.DB, error) {
	switch cfg.Store {
	case "postgres":
		db, err := persistence.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("Postgres connected")

		migrator := persistence.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator"))
		if err := migrator.Up(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return persistence.NewPostgresStore(db), db, nil
	case "leveldb":
		s, err := store.NewLevelStore(cfg.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("path", cfg.LevelDBPath).Msg("LevelDB opened")
		return s, nil, nil
	default:
		logger.Warn().Msg("memory store: state is lost on exit")
		return store.NewMemStore(), nil, nil
	}
}

func verifyChain(ctx context.Context, client *ethclient.Client, network Network, logger zerolog.Logger) {
	id, err := client.ChainID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read chain id")
		return
	}
	if id.Uint64() != network.ChainID {
		logger.Fatal().
			Uint64("want", network.ChainID).
			Str("got", id.String()).
			Str("network", network.Name).
			Msg("rpc endpoint serves a different chain")
	}
}

func runEVMSource(
	ctx context.Context,
	cfg Config,
	client *ethclient.Client,
	cursorBlock uint64,
	sink ingestion.Sink,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) error {
	source := ingestion.NewEVMSource(client, ingestion.NewDecoder(cfg.Network.Contract), ingestion.EVMSourceConfig{
		StartBlock:   cfg.Network.StartBlock,
		BatchSize:    cfg.BlockBatch,
		PollInterval: cfg.PollInterval,
		ScanCalls:    cfg.ScanCalls,
	}, observability.NewLogger("evm"), metrics)
	source.Resume(cursorBlock)
	logger.Info().
		Str("contract", cfg.Network.Contract.Hex()).
		Uint64("from_block", source.NextBlock()).
		Msg("polling payments contract")

	if err := source.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("evm source: %w", err)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		metricsServer.Shutdown(shutCtx)
	}()
	logger.Info().Str("addr", addr).Msg("metrics server listening on /metrics")
	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// reducer owns the engine. Every event from every source passes through
// apply on one goroutine.
type reducer struct {
	engine      *core.Engine
	checkpoints *core.Checkpointer
	cursor      atomic.Uint64
	done        chan struct{}
	logger      zerolog.Logger
}

func (r *reducer) apply(ctx context.Context, evt event.Event) error {
	if err := r.engine.ProcessEvent(ctx, evt); err != nil {
		return err
	}
	cur := r.engine.Cursor()
	r.cursor.Store(cur.Block)

	if r.checkpoints != nil {
		if _, err := r.checkpoints.Observe(ctx, cur); err != nil {
			r.logger.Warn().Err(err).Uint64("applied", cur.Applied).Msg("checkpoint failed")
		}
	}
	return nil
}

// runIngestionLoop applies NATS events in arrival order. A message is acked
// once its event is durable and nak'd when applying fails so JetStream
// redelivers it.
func (r *reducer) runIngestionLoop(ctx context.Context, rawChan <-chan ingestion.RawEvent) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-rawChan:
			eventType, err := ingestion.EventTypeFromSubject(raw.Subject)
			if err != nil {
				r.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("unknown subject, dropping")
				raw.AckFunc() // Ack invalid events to avoid redelivery loop
				continue
			}

			evt, err := ingestion.ParseRawEvent(raw, eventType)
			if err != nil {
				r.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("invalid event, dropping")
				raw.AckFunc()
				continue
			}

			if err := r.apply(ctx, evt); err != nil {
				r.logger.Error().Err(err).
					Str("event_type", eventType).
					Str("key", evt.IdempotencyKey()).
					Msg("apply failed, requesting redelivery")
				raw.NakFunc()
				continue
			}
			raw.AckFunc()
		}
	}
}

// runChainLoop applies events handed over by the EVM source.
func (r *reducer) runChainLoop(ctx context.Context, deliveries <-chan ingestion.Delivery) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-deliveries:
			err := r.apply(ctx, d.Event)
			if err != nil {
				r.logger.Error().Err(err).
					Str("event_type", d.Event.EventType().String()).
					Str("key", d.Event.IdempotencyKey()).
					Msg("apply failed")
			}
			d.Result <- err
		}
	}
}
