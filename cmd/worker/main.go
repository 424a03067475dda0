// opv-worker is a standalone event-history sync worker. API servers publish
// deployment events to NATS; this process consumes the stream and persists
// the history to the durable store. Running it separately keeps database
// writes off the serving path in multi-node deployments.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openpreview/openpreview/internal/config"
	"github.com/openpreview/openpreview/internal/events"
	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.NATSURL == "" {
		log.Fatalf("OPENPREVIEW_NATS_URL is required for the sync worker")
	}

	ctx := context.Background()

	// The worker only exists to persist history, so it needs a durable
	// store. In-memory would vanish with the process.
	var st store.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		st = pg
		log.Println("opv-worker: using PostgreSQL store")
	case cfg.RedisURL != "":
		st, err = store.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		log.Println("opv-worker: using Redis store")
	case cfg.SQLitePath != "":
		st, err = store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		log.Printf("opv-worker: using SQLite store at %s", cfg.SQLitePath)
	default:
		log.Fatalf("a durable store is required: set OPENPREVIEW_DATABASE_URL, OPENPREVIEW_REDIS_URL, or OPENPREVIEW_SQLITE_PATH")
	}
	defer st.Close()

	consumer, err := events.NewConsumer(st, cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	if err := consumer.Start(); err != nil {
		log.Fatalf("failed to start event consumer: %v", err)
	}
	defer consumer.Stop()
	log.Println("opv-worker: event consumer started")

	metricsAddr := cfg.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9091"
	}
	metricsSrv := metrics.StartMetricsServer(metricsAddr)
	defer metricsSrv.Close()
	log.Printf("opv-worker: metrics server on %s", metricsAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("opv-worker: shutting down...")
}
