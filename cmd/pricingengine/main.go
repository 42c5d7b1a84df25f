package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proposalcore/pricing-engine/internal/broker"
	"github.com/proposalcore/pricing-engine/internal/commit"
	"github.com/proposalcore/pricing-engine/internal/compute"
	"github.com/proposalcore/pricing-engine/internal/config"
	"github.com/proposalcore/pricing-engine/internal/orchestrator"
	"github.com/proposalcore/pricing-engine/internal/prepare"
	"github.com/proposalcore/pricing-engine/internal/ruleeval"
	"github.com/proposalcore/pricing-engine/internal/storage"
	"github.com/proposalcore/pricing-engine/internal/telemetry/logging"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
	"github.com/proposalcore/pricing-engine/internal/webhook"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log_ := logging.New("pricing-engine", logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Version: "1.0.0",
	})
	m := metrics.New()

	if err := storage.Migrate(cfg.Database, "migrations"); err != nil {
		log.Fatalf("failed to run database migrations: %v", err)
	}

	db, err := storage.Connect(cfg.Database, log_)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	ruleCompiler := prepare.NewRuleCompiler(ruleeval.DefaultLimits(), "1")
	fetcher := prepare.NewFetcher(db.DB)
	prepCache := prepare.NewFrozenInputCache(cfg.Redis, m)
	prepService := prepare.NewService(fetcher, ruleCompiler, prepCache, log_, m)

	writer := commit.NewWriter(db, log_, m, "1.0.0")

	publisher := broker.NewPublisher(cfg.Broker)
	outboxPublisher := commit.NewOutboxPublisher(db, publisher, log_, m, cfg.Outbox)

	webhooks := webhook.NewDispatcher(cfg.Webhook, log_, m)

	computeOpts := compute.DefaultOptions()
	computeOpts.WallBudget = cfg.Deadline.PureComputeCeiling()

	orch := orchestrator.New(prepService, writer, webhooks, computeOpts, cfg.Deadline, log_, m)

	ctx, cancelBackground := context.WithCancel(context.Background())
	go outboxPublisher.Run(ctx)

	server := setupServer(cfg, orch, log_, m)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	log_.Info("pricing engine started")
	<-quit
	log_.Info("shutting down pricing engine")

	orch.Shutdown()
	cancelBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	if err := publisher.Close(); err != nil {
		log_.Warn("error closing broker publisher")
	}
	if err := db.Close(); err != nil {
		log_.Warn("error closing database connection")
	}

	log_.Info("pricing engine stopped")
}
