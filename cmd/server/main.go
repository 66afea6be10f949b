// Command server runs the siteledger HTTP service: the ownership ledger and
// identity verification cores behind a chi router, persisting to PostgreSQL
// (or in-memory stores when DATABASE_URL is unset) with an optional Redis
// national-ID index and an optional Kafka audit mirror.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"siteledger/internal/account"
	"siteledger/internal/audit"
	ownershiphandler "siteledger/internal/ownership/handler"
	ownershipmetrics "siteledger/internal/ownership/metrics"
	ownershipservice "siteledger/internal/ownership/service"
	ownershipstore "siteledger/internal/ownership/store"
	"siteledger/internal/platform/config"
	"siteledger/internal/platform/httpserver"
	"siteledger/internal/platform/logger"
	platformredis "siteledger/internal/platform/redis"
	"siteledger/internal/platform/token"
	verificationhandler "siteledger/internal/verification/handler"
	verificationmetrics "siteledger/internal/verification/metrics"
	verificationservice "siteledger/internal/verification/service"
	verificationstore "siteledger/internal/verification/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: postgres when configured, memory otherwise.
	var (
		ownerships ownershipservice.Store
		accounts   account.Store
		verifs     verificationservice.Store
		auditStore audit.Store
		ownTx      ownershipservice.StoreTx
		verTx      verificationservice.StoreTx
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		ownerships = ownershipstore.NewPostgres(db)
		accounts = account.NewPostgres(db)
		verifs = verificationstore.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		pgTx := newPostgresTx(db)
		ownTx, verTx = pgTx, pgTx
		log.Info("using postgres stores")
	} else {
		ownerships = ownershipstore.NewInMemoryStore()
		accounts = account.NewInMemoryStore()
		verifs = verificationstore.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	// Optional Kafka audit mirror.
	var publisherOpts []audit.Option
	var worker *audit.Worker
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := audit.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer sink.Close()
		mirror := make(chan audit.Entry, 1024)
		publisherOpts = append(publisherOpts, audit.WithMirror(mirror))
		worker = audit.NewWorker(sink, mirror, log)
		log.Info("audit kafka mirror enabled", "topic", cfg.Kafka.Topic)
	}
	auditor := audit.NewPublisher(auditStore, publisherOpts...)

	// Optional Redis national-ID index.
	var verificationOpts []verificationservice.Option
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		verificationOpts = append(verificationOpts,
			verificationservice.WithNationalIDIndex(verificationstore.NewRedisIndex(redisClient.Client)))
		log.Info("national id redis index enabled")
	}

	ledger := ownershipservice.NewLedger(ownerships, accounts, auditor, ownTx,
		ownershipservice.WithLogger(log),
		ownershipservice.WithMetrics(ownershipmetrics.New()),
	)
	workflow := verificationservice.NewWorkflow(verifs, accounts, auditor, verTx,
		append(verificationOpts,
			verificationservice.WithLogger(log),
			verificationservice.WithMetrics(verificationmetrics.New()),
		)...,
	)

	jwtValidator := token.NewService(cfg.JWTSigningKey)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ownershiphandler.New(ledger, log, jwtValidator).Register(router)
	verificationhandler.New(workflow, log, cfg.AdminToken, jwtValidator).Register(router)

	server := httpserver.New(cfg.Addr, router)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if worker != nil {
		g.Go(func() error {
			if err := worker.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
