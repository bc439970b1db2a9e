package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"quorumgate/internal/engine"
	"quorumgate/internal/events"
	"quorumgate/internal/executor"
	"quorumgate/internal/jwttoken"
	"quorumgate/internal/ledger"
	ledgercache "quorumgate/internal/ledger/cache"
	"quorumgate/internal/owner"
	"quorumgate/internal/platform/config"
	"quorumgate/internal/platform/httpserver"
	"quorumgate/internal/platform/kafka"
	"quorumgate/internal/platform/logger"
	"quorumgate/internal/platform/metrics"
	"quorumgate/internal/platform/postgres"
	platformredis "quorumgate/internal/platform/redis"
	httptransport "quorumgate/internal/transport/http"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores: Postgres when configured, in-memory otherwise.
	ownerStore := owner.Store(owner.NewInMemoryStore())
	ledgerStore := ledger.Store(ledger.NewInMemoryStore())
	var engineOpts []engine.Option
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
		ownerStore = owner.NewPostgresStore(db)
		ledgerStore = ledger.NewPostgresStore(db)
		engineOpts = append(engineOpts, engine.WithTxRunner(newEnginePostgresTx(db)))
	}

	registry := owner.NewRegistry(ownerStore)
	if err := registry.Bootstrap(ctx, cfg.Owners, cfg.MinConfirmations); err != nil {
		log.Error("bootstrap quorum", "error", err)
		os.Exit(1)
	}
	if count, err := registry.Count(ctx); err == nil {
		if threshold, err := registry.Threshold(ctx); err == nil {
			m.SetQuorum(count, threshold)
		}
	}

	// Optional Redis read cache.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		engineOpts = append(engineOpts,
			engine.WithCache(ledgercache.New(redisClient.Client, cfg.Redis.CacheTTL, log)))
	}

	// Notification stream: Kafka when configured, structured log otherwise.
	publisher := events.NewChannelPublisher(256, log)
	var sink events.Sink = events.LogSink{Logger: log}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Error("connect kafka", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
		sink = producer
	}
	worker := events.NewWorker(publisher.Inbox(), sink, log)

	engineOpts = append(engineOpts, engine.WithMetrics(m))
	svc := engine.NewService(
		registry,
		ledgerStore,
		executor.NewWebhookInvoker(cfg.ExecTimeout),
		publisher,
		log,
		engineOpts...,
	)

	jwtService := jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer)
	handler := httptransport.NewHandler(svc, log)
	router := httptransport.NewRouter(handler, jwtService, log)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting quorumgate", "addr", cfg.Addr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := worker.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
