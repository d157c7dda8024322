// Package main starts the processing worker, which consumes project jobs
// from the queue and runs files through analysis and embedding.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/ttony15/cpmai/internal/ai"
	"github.com/ttony15/cpmai/internal/config"
	"github.com/ttony15/cpmai/internal/database"
	"github.com/ttony15/cpmai/internal/repository"
	"github.com/ttony15/cpmai/internal/s3storage"
	"github.com/ttony15/cpmai/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	projects := repository.NewProjectRepository(pool)
	files := repository.NewFileRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("ensure bucket: %v", err)
	}

	aiClient, err := ai.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init ai client: %v", err)
	}
	log.Printf("worker using ai provider %s", aiClient.Name())

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.ProcessingPool,
	})
	processor := worker.NewProcessor(projects, files, store, aiClient, cfg.ProcessingPool)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
