package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openpreview/openpreview/internal/analytics"
	"github.com/openpreview/openpreview/internal/api"
	"github.com/openpreview/openpreview/internal/auth"
	"github.com/openpreview/openpreview/internal/config"
	"github.com/openpreview/openpreview/internal/engine"
	"github.com/openpreview/openpreview/internal/events"
	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/internal/storage"
	"github.com/openpreview/openpreview/internal/store"
	"github.com/openpreview/openpreview/internal/template"
	"github.com/openpreview/openpreview/internal/vercel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// Pick the store backend: PostgreSQL wins over Redis wins over SQLite
	// wins over in-memory.
	var st store.Store
	var pg *store.Postgres
	switch {
	case cfg.DatabaseURL != "":
		pg, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		log.Println("openpreview: running database migrations...")
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Println("openpreview: database migrations complete")
		st = pg
	case cfg.RedisURL != "":
		st, err = store.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		log.Println("openpreview: using Redis store")
	case cfg.SQLitePath != "":
		st, err = store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		log.Printf("openpreview: using SQLite store at %s", cfg.SQLitePath)
	default:
		st = store.NewMemory()
		log.Println("openpreview: no store configured, deployments will not survive restarts")
	}
	defer st.Close()

	// Vercel client (optional; deploys fail with a configuration error
	// without it, everything else still works).
	var vc *vercel.Client
	if cfg.VercelToken != "" {
		vc = vercel.NewClient(vercel.Config{
			Token:  cfg.VercelToken,
			TeamID: cfg.VercelTeamID,
		})
		log.Println("openpreview: Vercel deployments configured")
	} else {
		log.Println("openpreview: no Vercel token, deployments disabled")
	}

	engineCfg := engine.Config{
		Client:         vc,
		Store:          st,
		Registry:       template.NewRegistry(),
		Framework:      cfg.Framework,
		ProjectPrefix:  cfg.ProjectPrefix,
		Target:         cfg.DeployTarget,
		CountdownDelay: time.Duration(cfg.AutoDeployDelaySec) * time.Second,
		PollInterval:   time.Duration(cfg.PollIntervalSec) * time.Second,
		MaxWait:        time.Duration(cfg.MaxWaitSec) * time.Second,
	}

	// Event pipeline: publish through NATS when configured, otherwise
	// record straight to the store.
	if cfg.NATSURL != "" {
		publisher, err := events.NewPublisher(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer publisher.Close()
		engineCfg.Publisher = publisher

		consumer, err := events.NewConsumer(st, cfg.NATSURL)
		if err != nil {
			log.Printf("openpreview: event consumer not available: %v (continuing without)", err)
		} else {
			if err := consumer.Start(); err != nil {
				log.Printf("openpreview: failed to start event consumer: %v", err)
			} else {
				defer consumer.Stop()
				log.Println("openpreview: NATS event pipeline started")
			}
		}
	} else {
		recorder := events.NewRecorder(st)
		defer recorder.Close()
		engineCfg.Publisher = recorder
	}

	// Snapshot archiver (optional): S3-compatible storage wins over Azure.
	switch {
	case cfg.S3Bucket != "":
		blobs, err := storage.NewS3(storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
		if err != nil {
			log.Printf("openpreview: failed to initialize S3 storage: %v (continuing without snapshot archives)", err)
		} else {
			engineCfg.Archiver = storage.NewSnapshotArchiver(blobs)
			log.Printf("openpreview: S3 snapshot archives configured (bucket=%s, region=%s)", cfg.S3Bucket, cfg.S3Region)
		}
	case cfg.AzureContainer != "":
		blobs, err := storage.NewAzure(storage.AzureConfig{
			AccountURL:       cfg.AzureAccountURL,
			Container:        cfg.AzureContainer,
			ConnectionString: cfg.AzureConnectionString,
		})
		if err != nil {
			log.Printf("openpreview: failed to initialize Azure storage: %v (continuing without snapshot archives)", err)
		} else {
			engineCfg.Archiver = storage.NewSnapshotArchiver(blobs)
			log.Printf("openpreview: Azure snapshot archives configured (container=%s)", cfg.AzureContainer)
		}
	}

	// Segment analytics (no-op without a write key).
	seg := analytics.New(cfg.SegmentWriteKey)
	defer seg.Close()
	engineCfg.Analytics = seg

	eng := engine.New(engineCfg)
	defer eng.Close()

	apiCfg := api.Config{
		Engine: eng,
		PG:     pg,
		APIKey: cfg.APIKey,
	}

	if cfg.JWTSecret != "" {
		apiCfg.JWTIssuer = auth.NewJWTIssuer(cfg.JWTSecret)
		log.Println("openpreview: JWT issuer configured")
	}

	if cfg.WorkOSAPIKey != "" && cfg.WorkOSClientID != "" {
		if pg == nil {
			log.Println("openpreview: WorkOS configured but no PostgreSQL store, dashboard auth disabled")
		} else {
			apiCfg.WorkOS = auth.NewWorkOSMiddleware(auth.WorkOSConfig{
				APIKey:       cfg.WorkOSAPIKey,
				ClientID:     cfg.WorkOSClientID,
				RedirectURI:  cfg.WorkOSRedirectURI,
				CookieDomain: cfg.WorkOSCookieDomain,
			}, pg)
			log.Println("openpreview: WorkOS authentication configured")
		}
	}

	server := api.NewServer(apiCfg)

	// Standalone metrics listener; without it /metrics rides the API port.
	if cfg.MetricsAddr != "" {
		msrv := metrics.StartMetricsServer(cfg.MetricsAddr)
		defer msrv.Close()
		log.Printf("openpreview: metrics server on %s", cfg.MetricsAddr)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("openpreview: starting server on %s", addr)

	go func() {
		if err := server.Start(addr); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("openpreview: shutting down...")
	if err := server.Close(); err != nil {
		log.Printf("error closing server: %v", err)
	}
}
