package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"pictor/internal/caption"
	"pictor/internal/codec"
	"pictor/internal/config"
	server "pictor/internal/http"
	"pictor/internal/migrate"
	"pictor/internal/pipeline"
	"pictor/internal/registry"
	"pictor/internal/store"
	"pictor/internal/thumbs"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// Record store: Postgres when a DSN is configured, in-memory otherwise.
	var records store.RecordStore
	if cfg.Database.DSN != "" {
		if err := migrate.Run(cfg.Database.DSN); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}

		db, err := sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db failed: %v", err)
		}
		// Basic pool settings; adjust as needed
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		records = store.New(db)
	} else {
		logger.Warn("no database DSN configured, job records are in-memory only")
		records = store.NewMemory()
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		rdb = redis.NewClient(opts)
	}

	rootCtx := context.Background()

	reg := registry.New(records, logger)
	if err := reg.Load(rootCtx); err != nil {
		log.Fatalf("load job records failed: %v", err)
	}
	// Jobs that were mid-flight when the previous process died can never
	// finish now; mark them failed before accepting new work.
	if n := reg.FailInterrupted(rootCtx); n > 0 {
		logger.Info("failed interrupted jobs from previous run", "count", n)
	}

	captioner, err := caption.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("caption model setup failed: %v", err)
	}

	th := thumbs.New(cfg.Storage.DataDir, rdb)
	c := codec.New(cfg.Thumbnails.SmallQuality, cfg.Thumbnails.MediumQuality)
	exec := pipeline.NewExecutor(reg, c, captioner, th, cfg.Storage.DataDir+"/originals", logger)

	timeout := time.Duration(cfg.Worker.JobTimeoutMs) * time.Millisecond
	disp := pipeline.NewDispatcher(rootCtx, exec, cfg.Worker.MaxConcurrentJobs, timeout)

	s := server.NewServer(server.Deps{
		Config:     cfg,
		Registry:   reg,
		Thumbs:     th,
		Dispatcher: disp,
		Records:    records,
		Redis:      rdb,
		Logger:     logger,
	})
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
