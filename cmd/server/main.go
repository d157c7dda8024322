// Package main starts the API server: project management, uploads,
// processing triggers and the chat stream.
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
	"github.com/ttony15/cpmai/internal/api"
	"github.com/ttony15/cpmai/internal/chat"
	"github.com/ttony15/cpmai/internal/config"
	"github.com/ttony15/cpmai/internal/database"
	"github.com/ttony15/cpmai/internal/repository"
	"github.com/ttony15/cpmai/internal/s3storage"
	"github.com/ttony15/cpmai/internal/signing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A .env file is a development convenience; in production the variables
	// come from the environment directly.
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

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	aiClient, err := ai.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init ai client: %v", err)
	}
	log.Printf("using ai provider %s", aiClient.Name())

	chatPipeline, err := chat.New(files, aiClient)
	if err != nil {
		log.Fatalf("init chat pipeline: %v", err)
	}

	signer := signing.NewSigner(cfg.SigningSecret)
	srv := api.New(cfg, projects, files, store, queueClient, signer, chatPipeline)
	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
